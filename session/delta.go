package session

// StateDelta is a batch of pending mutations produced by a builtin or an
// executor step. The executor merges a delta into the Session atomically,
// at the granularity of a single statement, which is what lets a builtin
// run safely inside a subshell or a pipeline stage without partially
// mutating shared state.
type StateDelta struct {
	VarUpdates    map[string]Variable
	VarUnset      []string
	NamerefUnset  []string // `unset -n`: remove the reference, not its target

	FuncUpdates map[string]Function
	FuncUnset   []string

	EnvUpdates map[string]string // exported-variable mirror, for external spawn

	OptionUpdates map[string]bool

	WorkingDir    string // "" means unchanged
	OldPwd        string
	DirStackSet   bool
	DirStack      []string

	JobUpdates map[int]*Job
	JobRemoved []int

	FdUpdates map[int]FdEntry
	FdRemoved []int

	HistoryAppend []string

	TrapUpdates map[string]Trap
	TrapUnset   []string

	PositionalSet bool
	Positional    []string

	LastExit   uint8
	SetLastExit bool

	Err error // set when the delta itself failed to fully apply (e.g. readonly)
}

// NewDelta returns an empty, ready-to-populate StateDelta.
func NewDelta() *StateDelta {
	return &StateDelta{}
}

// Apply merges d into s atomically: every field that is set in d is
// written to s, and fields left at their zero value are left untouched.
// A readonly violation on one variable name does not prevent other names
// in the same delta from applying.
func (s *Session) Apply(d *StateDelta) error {
	if d == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, v := range d.VarUpdates {
		if err := s.SetVar(name, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, name := range d.VarUnset {
		if err := s.UnsetVar(name, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, name := range d.NamerefUnset {
		if err := s.UnsetVar(name, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for name, fn := range d.FuncUpdates {
		s.Functions[name] = fn
	}
	for _, name := range d.FuncUnset {
		delete(s.Functions, name)
	}
	for name, val := range d.EnvUpdates {
		v := s.Variables[name]
		v.Str = val
		v.Kind = Scalar
		v.Exported = true
		s.Variables[name] = v
	}
	for name, val := range d.OptionUpdates {
		s.applyOption(name, val)
	}
	if d.WorkingDir != "" {
		s.OldPwd = s.WorkingDir
		s.WorkingDir = d.WorkingDir
		s.Variables["PWD"] = Variable{Kind: Scalar, Str: s.WorkingDir}
		s.Variables["OLDPWD"] = Variable{Kind: Scalar, Str: s.OldPwd}
	}
	if d.DirStackSet {
		s.DirStack = d.DirStack
	}
	for id, j := range d.JobUpdates {
		s.Jobs[id] = j
	}
	for _, id := range d.JobRemoved {
		delete(s.Jobs, id)
	}
	for fd, entry := range d.FdUpdates {
		s.FileDescriptors[fd] = entry
	}
	for _, fd := range d.FdRemoved {
		delete(s.FileDescriptors, fd)
	}
	for _, text := range d.HistoryAppend {
		s.PushHistory(text)
	}
	for name, t := range d.TrapUpdates {
		s.Traps[name] = t
	}
	for _, name := range d.TrapUnset {
		delete(s.Traps, name)
	}
	if d.PositionalSet {
		s.Positional = d.Positional
	}
	if d.SetLastExit {
		s.LastExit = d.LastExit
	}
	if firstErr == nil {
		firstErr = d.Err
	}
	return firstErr
}

func (s *Session) applyOption(name string, val bool) {
	switch name {
	case "errexit":
		s.Options.ErrExit = val
	case "nounset":
		s.Options.NoUnset = val
	case "pipefail":
		s.Options.PipeFail = val
	case "allexport":
		s.Options.AllExport = val
	case "noglob":
		s.Options.NoGlob = val
	case "noclobber":
		s.Options.NoClobber = val
	case "noexec":
		s.Options.NoExec = val
	case "verbose":
		s.Options.Verbose = val
	case "xtrace":
		s.Options.XTrace = val
	case "onecmd":
		s.Options.OneCmd = val
	case "monitor":
		s.Options.Monitor = val
	case "notify":
		s.Options.Notify = val
	case "hashall":
		s.Options.HashAll = val
	case "extglob":
		s.Options.ExtGlob = val
	case "nullglob":
		s.Options.NullGlob = val
	case "dotglob":
		s.Options.DotGlob = val
	case "globstar":
		s.Options.GlobStar = val
	case "sourcepath":
		s.Options.SourcePath = val
	case "cmdhist":
		s.Options.CmdHist = val
	case "expand_aliases":
		s.Options.ExpandAliases = val
	}
}
