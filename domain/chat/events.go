package chat

// SystemSender is the display name used for server notices.
const SystemSender = "System"

// Inbound realtime event names.
const (
	EventEnterRoom             = "enterRoom"
	EventMessage               = "message"
	EventImageMessage          = "imageMessage"
	EventVoiceMessage          = "voiceMessage"
	EventActivity              = "activity"
	EventPrivateMessage        = "privateMessage"
	EventGetPrivateHistory     = "getPrivateHistory"
	EventGetRecentPrivateChats = "getRecentPrivateChats"
	EventGetOnlineUsers        = "getOnlineUsers"
	EventGetUserList           = "getUserList"
	EventGetRooms              = "getRooms"
	EventClearRoom             = "clearRoom"
	EventStreamingStatusUpdate = "streamingStatusUpdate"
	EventHostLeftConference    = "hostLeftConference"
	EventGetStreamingUsers     = "getStreamingUsers"
	EventPrivateVoiceCall      = "privateVoiceCall"
)

// Outbound realtime event names. Some share a name with their inbound
// counterpart (message, activity, privateMessage, clearRoom,
// hostLeftConference).
const (
	EventUserList                    = "userList"
	EventRoomList                    = "roomList"
	EventPrivateMessageSent          = "privateMessageSent"
	EventPrivateHistory              = "privateHistory"
	EventRecentPrivateChats          = "recentPrivateChats"
	EventOnlineUsers                 = "onlineUsers"
	EventStreamingUsersUpdate        = "streamingUsersUpdate"
	EventPrivateVoiceCallPopup       = "privateVoiceCallPopup"
	EventPrivateVoiceCallUnavailable = "privateVoiceCallUnavailable"
)
