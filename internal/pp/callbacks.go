package pp

// FileChangeReason says why FileChanged was called.
type FileChangeReason int

const (
	EnterFile FileChangeReason = iota
	ExitFile
)

// Callbacks receives preprocessing events for one translation unit in
// source order. InclusionDirective is called before the included file is
// entered. FileNotFound, when it fires, comes right before the
// InclusionDirective of the same directive.
type Callbacks interface {
	FileChanged(loc SourceLocation, reason FileChangeReason)
	InclusionDirective(hash SourceLocation, fileName string, angled bool, file *FileEntry)
	FileNotFound(fileName string)
	MacroDefined(name Token, md *MacroDirective)
	MacroUndefined(name Token, def MacroDefinition, undef *MacroDirective)
	MacroExpands(name Token, def MacroDefinition)
	Ifdef(loc SourceLocation, name Token, def MacroDefinition)
	Ifndef(loc SourceLocation, name Token, def MacroDefinition)
	Defined(name Token, def MacroDefinition)
	EndOfMainFile()
}

// NopCallbacks implements Callbacks with no-ops. Embed it to override only
// the events of interest.
type NopCallbacks struct{}

var _ Callbacks = NopCallbacks{}

func (NopCallbacks) FileChanged(SourceLocation, FileChangeReason) {}
func (NopCallbacks) InclusionDirective(SourceLocation, string, bool, *FileEntry) {}
func (NopCallbacks) FileNotFound(string) {}
func (NopCallbacks) MacroDefined(Token, *MacroDirective) {}
func (NopCallbacks) MacroUndefined(Token, MacroDefinition, *MacroDirective) {}
func (NopCallbacks) MacroExpands(Token, MacroDefinition) {}
func (NopCallbacks) Ifdef(SourceLocation, Token, MacroDefinition) {}
func (NopCallbacks) Ifndef(SourceLocation, Token, MacroDefinition) {}
func (NopCallbacks) Defined(Token, MacroDefinition) {}
func (NopCallbacks) EndOfMainFile() {}
