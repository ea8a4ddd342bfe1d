package devstats

// APIResponse is the DevStats per-user activity payload.
type APIResponse struct {
	Profile       APIProfile `json:"profile"`
	DailyActivity []APIDay   `json:"dailyActivity"`
}

type APIProfile struct {
	ID          int64   `json:"id"`
	Handle      string  `json:"handle"`
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	TotalSolved int     `json:"totalSolved"`
}

type APIDay struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
	Total int    `json:"total"`
}
