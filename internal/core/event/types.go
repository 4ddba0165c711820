package event

// AppExit asks the host loop to stop after the current tick.
type AppExit struct {
	Code int
}
