package backend

// LoginResponse is the body of GET <login_path><password>
type LoginResponse struct {
	Summary *Summary  `json:"summary"`
	Content []Content `json:"content"`
}

// Summary describes the device
type Summary struct {
	ID           int    `json:"id"`
	Password     string `json:"password"`
	Description  string `json:"description"`
	Organization string `json:"organization"`
	BusinessUnit string `json:"business_unity"`
	Area         string `json:"area"`
	Type         string `json:"type"`
}

// Content is one media assignment of the device
type Content struct {
	IDDeviceContent    int     `json:"id_device_content"`
	IDContent          int     `json:"id_content"`
	Content            string  `json:"content"`     // Display name
	URLContent         string  `json:"url_content"` // Path relative to the backend root
	PlayBeginningDate  *string `json:"play_beginning_date"`
	PlayEndDate        *string `json:"play_end_date"`
	PositionInCarousel *int    `json:"position_in_carousel"`
	Hour               *int    `json:"hour"`
	Minute             *int    `json:"minute"`
	Seconds            *int    `json:"seconds"`
	Rotation           *int    `json:"rotation"`
}
