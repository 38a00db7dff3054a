package event

// File is the payload of file.saved and file.changed.
type File struct {
	Path string
}

// CompileCompleted is the payload of compile.completed.
type CompileCompleted struct {
	Path    string
	Success bool
	Err     error
}

// Session is the payload of debug.session.started and debug.session.ended.
type Session struct {
	ID string
}

// Position is the payload of debug.position.changed and debug.cursor.moved.
// Line is 0-based, as editors report it.
type Position struct {
	Path string
	Line uint32
}
