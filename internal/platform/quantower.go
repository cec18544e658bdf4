package platform

// QuantowerProfile monitors the Quantower trading platform.
type QuantowerProfile struct{}

// NewQuantowerProfile creates the Quantower profile.
func NewQuantowerProfile() *QuantowerProfile {
	return &QuantowerProfile{}
}

func (p *QuantowerProfile) ID() string   { return "quantower" }
func (p *QuantowerProfile) Name() string { return "Quantower" }

// ExecutableName returns the Quantower launcher process. Quantower runs
// under its bootstrapper, not an executable named after the product.
func (p *QuantowerProfile) ExecutableName() string { return "Starter.exe" }

func (p *QuantowerProfile) WindowTitleHints() []string {
	return []string{"Quantower"}
}

func (p *QuantowerProfile) BlockName() string { return "Quantower" }

// OCR tuning for Quantower's dark theme: small light digits on near-black.
func (p *QuantowerProfile) OCR() OCRProfile {
	return OCRProfile{ScaleFactor: 4, Invert: true, PageSegMode: 7}
}
