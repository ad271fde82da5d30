package ports

// Metrics records bridge outcomes
type Metrics interface {
	AuthVerification(result string)
	CredentialRefresh(result string)
	ConversionOutcome(outcome string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) AuthVerification(string)  {}
func (NopMetrics) CredentialRefresh(string) {}
func (NopMetrics) ConversionOutcome(string) {}
