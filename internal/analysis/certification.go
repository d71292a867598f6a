package analysis

const (
	CertGold     = "gold"
	CertPlatinum = "platinum"
	CertDiamond  = "diamond"
)

// Thresholds are the scrobble counts a track needs for each certification.
type Thresholds struct {
	Gold     int `mapstructure:"gold"`
	Platinum int `mapstructure:"platinum"`
	Diamond  int `mapstructure:"diamond"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Gold: 250, Platinum: 500, Diamond: 1000}
}

// Threshold returns the minimum scrobbles for a certification.
func (t Thresholds) Threshold(cert string) int {
	switch cert {
	case CertDiamond:
		return t.Diamond
	case CertPlatinum:
		return t.Platinum
	case CertGold:
		return t.Gold
	}
	return 0
}

// Certification returns the highest certification reached, or "".
func (t Thresholds) Certification(scrobbles int) string {
	for _, cert := range []string{CertDiamond, CertPlatinum, CertGold} {
		if need := t.Threshold(cert); need > 0 && scrobbles >= need {
			return cert
		}
	}
	return ""
}
