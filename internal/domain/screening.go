package domain

// ScreeningResult is the verdict of the pre-routing security check.
type ScreeningResult struct {
	Safe       bool    `json:"safe"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Screener inspects raw user input before any agent sees it.
type Screener interface {
	Screen(input string) ScreeningResult
}
