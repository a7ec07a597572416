package enum

type Platform uint8

const (
	_platform_beg Platform = iota
	PlatformBinanceFutures
	PlatformPaper
	_platform_end
)

func (p Platform) IsAvailable() bool {
	return p > _platform_beg && p < _platform_end
}

func (p Platform) String() string {
	switch p {
	case PlatformBinanceFutures:
		return "binance-futures"
	case PlatformPaper:
		return "paper"
	default:
		return ""
	}
}

// ParsePlatform maps a configured venue name onto Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch s {
	case "binance", "binance-futures":
		return PlatformBinanceFutures, true
	case "paper":
		return PlatformPaper, true
	default:
		return _platform_beg, false
	}
}
