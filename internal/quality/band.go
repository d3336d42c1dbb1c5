package quality

// Band is one of the six fixed percentage ranges shared by Grade and Advice.
// Min is inclusive; the upper bound is the next band's Min (the top band is
// closed at 100).
type Band struct {
	Min    int    `json:"min"`
	Grade  string `json:"grade"`
	Advice string `json:"advice"`
}

// Grade labels, best first.
const (
	GradeExcellent = "Excellent"
	GradeVeryGood  = "Very Good"
	GradeGood      = "Good"
	GradeFair      = "Fair"
	GradePoor      = "Poor"
	GradeVeryPoor  = "Very Poor"
)

// bands is ordered by descending Min; BandFor relies on that.
var bands = [...]Band{
	{
		Min:    90,
		Grade:  GradeExcellent,
		Advice: "This media has excellent quality with great resolution, sharpness, and color depth. It provides the best conditions for accurate AI detection analysis. High-quality media like this gives our system the most detail to work with.",
	},
	{
		Min:    80,
		Grade:  GradeVeryGood,
		Advice: "This media has very good quality. It could be slightly improved with better lighting conditions, higher resolution, or reduced motion blur. These factors help our AI detection work more accurately by providing clearer details to analyze.",
	},
	{
		Min:    70,
		Grade:  GradeGood,
		Advice: "This media has good quality but could be better. Improved lighting, higher resolution, or capturing with a better camera would help. Media shot in bright natural light with a main camera lens typically provides more detail for accurate AI detection analysis.",
	},
	{
		Min:    60,
		Grade:  GradeFair,
		Advice: "This media has fair quality. Better results could be achieved with improved lighting, steadier capture to reduce blur, or higher quality camera settings. Digital zoom appears to have been used which reduces sharpness. Clearer media helps provide more reliable AI detection results.",
	},
	{
		Min:    50,
		Grade:  GradePoor,
		Advice: "This media has low quality which may affect detection accuracy. The lighting appears insufficient, there may be lens issues affecting clarity, or heavy compression has been applied. Media captured with better lighting, a cleaner lens, without filters or beauty effects, and at full resolution would provide much better analysis results.",
	},
	{
		Min:    0,
		Grade:  GradeVeryPoor,
		Advice: "This media has very low quality which impacts reliable analysis. Issues include poor lighting, possible lens obstruction, low resolution, or heavy compression. For accurate AI detection, media needs to be captured in bright conditions, with a clean unobstructed lens, at high resolution, and without heavy editing or compression.",
	},
}

// BandFor returns the band containing percentage. The top band is closed at
// 100; anything outside 0..100 falls through to the bottom band.
func BandFor(percentage int) Band {
	if percentage > MaxScore {
		return bands[len(bands)-1]
	}
	for _, b := range bands {
		if percentage >= b.Min {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Bands returns all six bands, best first.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands[:])
	return out
}

// Advice returns the improvement guidance for a percentage.
func Advice(percentage int) string {
	return BandFor(percentage).Advice
}

// Indicator is a coarse traffic-light rating used next to the percentage.
type Indicator string

const (
	IndicatorGood Indicator = "good"
	IndicatorFair Indicator = "fair"
	IndicatorPoor Indicator = "poor"
)

// IndicatorFor maps a percentage to its indicator: 85 and up is good,
// 65 and up is fair.
func IndicatorFor(percentage int) Indicator {
	switch {
	case percentage >= 85:
		return IndicatorGood
	case percentage >= 65:
		return IndicatorFair
	default:
		return IndicatorPoor
	}
}
