package platform

// TradovateProfile monitors the Tradovate desktop app.
type TradovateProfile struct{}

// NewTradovateProfile creates the Tradovate profile.
func NewTradovateProfile() *TradovateProfile {
	return &TradovateProfile{}
}

func (p *TradovateProfile) ID() string             { return "tradovate" }
func (p *TradovateProfile) Name() string           { return "Tradovate" }
func (p *TradovateProfile) ExecutableName() string { return "Tradovate.exe" }

func (p *TradovateProfile) WindowTitleHints() []string {
	return []string{"Tradovate"}
}

func (p *TradovateProfile) BlockName() string { return "Tradovate" }

func (p *TradovateProfile) OCR() OCRProfile {
	return OCRProfile{ScaleFactor: 4, Invert: true, PageSegMode: 7}
}
