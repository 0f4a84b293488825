// File: internal/flags/gecko.go
package flags

// geckoDefinitions is the flag table for Firefox. Gecko takes single-dash
// switches and passes values as separate tokens.
var geckoDefinitions = []Definition{
	{Name: FlagDebuggingPort, Template: "--start-debugger-server", Kind: KindValue, Separate: true, Validate: Port},
	{Name: FlagProfileDir, Template: "-profile", Kind: KindValue, Separate: true},
	{Name: FlagHeadless, Template: "-headless", Kind: KindSwitch},
	{Name: FlagMuteAudio, Template: "--mute-audio", Kind: KindSwitch},
	{Name: FlagUserAgent, Template: "--user-agent", Kind: KindValue, Separate: true},
	{Name: FlagWindowSize, Template: "--window-size", Kind: KindValue, Separate: true},
	{Name: FlagStartPage, Kind: KindPositional},
}

// NewGeckoSet returns a Set understanding Firefox switches. Flags the
// family has no equivalent for (proxy, window position, capability entries)
// are simply not defined, so Apply reports them as unknown instead of
// emitting arguments Firefox would choke on.
func NewGeckoSet() *Set {
	return NewSet(geckoDefinitions)
}
