package hidrive

import "errors"

// ErrEmptyIdentifier is returned when neither pid nor path was supplied.
var ErrEmptyIdentifier = errors.New("hidrive: identifier needs a pid, a path, or both")

// ErrPathRequired is returned by endpoints that cannot address a target by pid alone.
var ErrPathRequired = errors.New("hidrive: identifier must include a path")

// Identifier selects a file or directory by object ID, by path, or by a path
// relative to an object ID.
type Identifier struct {
	pid  string
	path string
}

// ByPID addresses an object by its ID.
func ByPID(pid string) Identifier {
	return Identifier{pid: pid}
}

// ByPath addresses an object by its absolute path.
func ByPath(path string) Identifier {
	return Identifier{path: path}
}

// ByPIDAndPath addresses path relative to the object pid.
func ByPIDAndPath(pid, path string) Identifier {
	return Identifier{pid: pid, path: path}
}

// PID returns the object ID part, if any.
func (id Identifier) PID() string { return id.pid }

// Path returns the path part, if any.
func (id Identifier) Path() string { return id.path }

// Validate rejects an identifier with neither part set.
func (id Identifier) Validate() error {
	if id.pid == "" && id.path == "" {
		return ErrEmptyIdentifier
	}

	return nil
}

// requirePath is used by endpoints whose target must be given as Path or
// as a path relative to a pid.
func (id Identifier) requirePath() error {
	if err := id.Validate(); err != nil {
		return err
	}

	if id.path == "" {
		return ErrPathRequired
	}

	return nil
}

// AddTo appends the pid under pidKey and then the path under pathKey, skipping
// whichever part is empty.
func (id Identifier) AddTo(p *Params, pidKey, pathKey string) *Params {
	if id.pid != "" {
		p = p.AddString(pidKey, id.pid)
	}

	if id.path != "" {
		p = p.AddString(pathKey, id.path)
	}

	return p
}

func (id Identifier) String() string {
	switch {
	case id.pid != "" && id.path != "":
		return id.pid + ":" + id.path
	case id.pid != "":
		return id.pid
	default:
		return id.path
	}
}
