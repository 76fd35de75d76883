package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Control message types exchanged over the reliable channel.
const (
	TypeLogin        = "login"
	TypeLoginSuccess = "login_success"
	TypeLoginError   = "login_error"
	TypeLogout       = "logout"
	TypeHeartbeat    = "heartbeat"

	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"

	TypeChat       = "chat"
	TypeMediaState = "media_state"

	TypeRequestPresenter = "request_presenter"
	TypePresenterGranted = "presenter_granted"
	TypePresenterDenied  = "presenter_denied"
	TypePresenterChanged = "presenter_changed"
	TypeStopPresenting   = "stop_presenting"
	TypeScreenFrame      = "screen_frame"

	TypeForceMute              = "force_mute"
	TypeForceMuteAll           = "force_mute_all"
	TypeForceVideoOff          = "force_video_off"
	TypeForceVideoOffAll       = "force_video_off_all"
	TypeForceStopPresenting    = "force_stop_presenting"
	TypeForceStopScreenSharing = "force_stop_screen_sharing"
	TypeHostRequest            = "host_request"
	TypeSetPermission          = "set_permission"
	TypeKick                   = "kick"
	TypeHostChanged            = "host_changed"

	TypeFileOffer        = "file_offer"
	TypeFileUploadPort   = "file_upload_port"
	TypeFileAvailable    = "file_available"
	TypeFileRequest      = "file_request"
	TypeFileDownloadPort = "file_download_port"
	TypeFileError        = "file_error"
	TypeGetFilesList     = "get_files_list"
	TypeFilesListUpdate  = "files_list_update"

	TypePermissionError = "permission_error"
	TypeServerShutdown  = "server_shutdown"
)

// Message is the JSON control envelope. Every record carries Type and
// Timestamp; the remaining fields depend on Type.
type Message struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"` // ISO-8601, server clock is authoritative

	// login / roster
	Name         string               `json:"name,omitempty"`      // login: requested display name
	ClientID     int                  `json:"client_id,omitempty"` // login_success: assigned id (never 0 for remote clients)
	ID           *int                 `json:"id,omitempty"`        // user_joined/user_left/media_state: subject id (0 is the host)
	HostID       *int                 `json:"host_id,omitempty"`   // login_success/host_changed: current host
	Reason       string               `json:"reason,omitempty"`    // login_error/user_left/presenter_denied/file_error
	Participants []ParticipantInfo    `json:"participants,omitempty"`
	ChatHistory  []ChatMessage        `json:"chat_history,omitempty"`
	SharedFiles  map[string]FileEntry `json:"shared_files,omitempty"` // login_success/files_list_update, keyed by fid

	// chat
	Text       string `json:"text,omitempty"`
	SenderID   *int   `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`

	// media_state (pointers: absent means "unchanged")
	VideoOn       *bool `json:"video_on,omitempty"`
	AudioOn       *bool `json:"audio_on,omitempty"`
	ScreenSharing *bool `json:"screen_sharing,omitempty"`

	// presenter / screen
	PresenterID *int   `json:"presenter_id,omitempty"` // presenter_changed: absent clears the slot
	FrameData   []byte `json:"frame_data,omitempty"`   // screen_frame: opaque compressed frame (base64 on the wire)

	// moderation
	TargetClient *int   `json:"target_client,omitempty"` // force_*: target participant
	Target       *int   `json:"target,omitempty"`        // set_permission/kick: target participant
	Field        string `json:"field,omitempty"`         // set_permission: permission name
	Value        *bool  `json:"value,omitempty"`         // set_permission: new value
	RequestType  string `json:"request_type,omitempty"`  // host_request: "audio" or "video"
	Message      string `json:"message,omitempty"`       // host_request/permission_error: human-readable text

	// files
	FID      string `json:"fid,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Port     int    `json:"port,omitempty"` // file_upload_port/file_download_port: ephemeral listener port
	Uploader string `json:"uploader,omitempty"`
}

// ParticipantInfo is the roster payload for one participant.
type ParticipantInfo struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	IsHost        bool        `json:"is_host"`
	VideoOn       bool        `json:"video_on"`
	AudioOn       bool        `json:"audio_on"`
	ScreenSharing bool        `json:"screen_sharing"`
	IsPresenter   bool        `json:"is_presenter"`
	Permissions   Permissions `json:"permissions"`
}

// Permissions are the host-mutable per-participant capability flags.
type Permissions struct {
	MayVideo       bool `json:"may_video"`
	MayAudio       bool `json:"may_audio"`
	MayScreenShare bool `json:"may_screen_share"`
	MayChat        bool `json:"may_chat"`
	MayUpload      bool `json:"may_upload"`
	MayDownload    bool `json:"may_download"`
}

// Permission field names accepted by set_permission.
const (
	PermVideo       = "may_video"
	PermAudio       = "may_audio"
	PermScreenShare = "may_screen_share"
	PermChat        = "may_chat"
	PermUpload      = "may_upload"
	PermDownload    = "may_download"
)

// ChatMessage is one immutable chat log entry.
type ChatMessage struct {
	SenderID   int    `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
}

// FileEntry describes one shared file in the index.
type FileEntry struct {
	FID        string `json:"fid"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	Uploader   string `json:"uploader"`
	UploaderID string `json:"uploader_id"` // participant id as decimal string, or "manual"
	UploadedAt string `json:"uploaded_at"`
}

// Now returns the server-authoritative timestamp string for outbound records.
func Now() string {
	return time.Now().Format(time.RFC3339)
}

// IntPtr is a convenience for the optional id fields.
func IntPtr(v int) *int { return &v }

// BoolPtr is a convenience for the optional flag fields.
func BoolPtr(v bool) *bool { return &v }

// ValidateName trims whitespace from s and returns the trimmed string, or an
// error if the result is empty or exceeds MaxNameLength bytes.
func ValidateName(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("name must not be empty")
	case len(s) > MaxNameLength:
		return "", fmt.Errorf("name must not exceed %d characters", MaxNameLength)
	}
	return s, nil
}
