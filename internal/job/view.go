package job

import "time"

// View is the read-only projection of a job handed to consumer handlers.
// It carries no policy internals and mutating it has no effect on storage.
type View struct {
	ID         string
	Name       string
	State      State
	CreateTime time.Time
	Attempt    int
	StartTime  time.Time
}

// View returns the public projection of the job for the current attempt.
func (j *Job) View() View {
	v := View{
		ID:         j.ID,
		Name:       j.Name,
		State:      j.State,
		CreateTime: j.CreateTime,
	}
	if run := j.CurrentRun(); run != nil {
		v.Attempt = run.Count
		v.StartTime = run.StartTime
	}
	return v
}
