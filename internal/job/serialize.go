package job

import (
	"encoding/json"
	"fmt"
)

// Marshal renders the job as its canonical itemData serialization.
func (j *Job) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// Unmarshal decodes canonical itemData into a Job. Unknown fields are
// tolerated for forward compatibility. The embedded state field is advisory
// only; callers reading from storage must override it with the separately
// stored state field.
func Unmarshal(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &j, nil
}
