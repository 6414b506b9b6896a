package models

// APIResponse is the envelope for every REST reply.
type APIResponse struct {
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorCode  string      `json:"error_code,omitempty"`
}

// CreatedPoll is the REST payload returned to a poll's creator. The host token
// is minted once, here; it never travels on the broadcast channel.
type CreatedPoll struct {
	Poll      *Poll  `json:"poll"`
	HostToken string `json:"host_token"`
}

// PollSnapshot is the REST payload for a room lookup: the poll plus its
// current tally and connected-participant count.
type PollSnapshot struct {
	Poll  *Poll `json:"poll"`
	Tally Tally `json:"tally"`
	Count int64 `json:"count"`
}
