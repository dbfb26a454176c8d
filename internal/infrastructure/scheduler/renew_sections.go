package scheduler

import "context"

// Renewer replaces finished or expired quest sections.
type Renewer interface {
	CheckAndRenewSections(ctx context.Context)
}

// RenewSectionsJob periodically asks the engine to renew its sections, so an
// actor who stays idle past a cycle boundary still gets fresh quests.
type RenewSectionsJob struct {
	renewer Renewer
}

// NewRenewSectionsJob creates the job.
func NewRenewSectionsJob(r Renewer) *RenewSectionsJob {
	return &RenewSectionsJob{renewer: r}
}

// Name implements Job.
func (j *RenewSectionsJob) Name() string { return "renew_sections" }

// Run implements Job. Renewal failures are handled and logged by the engine.
func (j *RenewSectionsJob) Run(ctx context.Context) error {
	j.renewer.CheckAndRenewSections(ctx)
	return ctx.Err()
}
