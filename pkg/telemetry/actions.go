package telemetry

type ActionCategory int

const (
	Scheduling = iota
	Dispatching
	Validation
	CoverageBuild
	Measurement
	Reporting
)

func (a ActionCategory) String() string {
	switch a {
	case Scheduling:
		return "scheduling"
	case Dispatching:
		return "dispatching"
	case Validation:
		return "validation"
	case CoverageBuild:
		return "coverage_build"
	case Measurement:
		return "measurement"
	case Reporting:
		return "reporting"
	default:
		return "unknown"
	}
}
