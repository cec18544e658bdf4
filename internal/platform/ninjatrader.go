package platform

// NinjaTraderProfile monitors the NinjaTrader trading platform.
type NinjaTraderProfile struct{}

// NewNinjaTraderProfile creates the NinjaTrader profile.
func NewNinjaTraderProfile() *NinjaTraderProfile {
	return &NinjaTraderProfile{}
}

func (p *NinjaTraderProfile) ID() string             { return "ninjatrader" }
func (p *NinjaTraderProfile) Name() string           { return "NinjaTrader" }
func (p *NinjaTraderProfile) ExecutableName() string { return "NinjaTrader.exe" }

func (p *NinjaTraderProfile) WindowTitleHints() []string {
	return []string{"NinjaTrader", "Control Center"}
}

// BlockName is "Ninja", not "NinjaTrader": blocker block names are capped in
// length by its UI, and existing user configurations use the short form.
func (p *NinjaTraderProfile) BlockName() string { return "Ninja" }

func (p *NinjaTraderProfile) OCR() OCRProfile {
	return OCRProfile{ScaleFactor: 3, Invert: false, PageSegMode: 7}
}
