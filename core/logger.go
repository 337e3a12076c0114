package core

type (
	// Logger is any service that can log app events.
	// args may hold errors, maps of extra data, and at most one Person.
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Person is the learner a log entry relates to.
	Person struct {
		ID string
	}
)
