package platform

// TradingViewProfile monitors the TradingView desktop app.
type TradingViewProfile struct{}

// NewTradingViewProfile creates the TradingView profile.
func NewTradingViewProfile() *TradingViewProfile {
	return &TradingViewProfile{}
}

func (p *TradingViewProfile) ID() string             { return "tradingview" }
func (p *TradingViewProfile) Name() string           { return "TradingView" }
func (p *TradingViewProfile) ExecutableName() string { return "TradingView.exe" }

func (p *TradingViewProfile) WindowTitleHints() []string {
	return []string{"TradingView"}
}

func (p *TradingViewProfile) BlockName() string { return "TradingView" }

func (p *TradingViewProfile) OCR() OCRProfile {
	return OCRProfile{ScaleFactor: 4, Invert: true, PageSegMode: 7}
}
