// Package fixtures creates users, jobs and applications for tests.
//
// A Factory writes through the repository layer, so the same fixtures work
// against SurrealDB and the in-memory store:
//
//	f := fixtures.New(tdb.DB)              // or fixtures.NewMemory(store)
//	recruiter := f.CreateRecruiter(t)
//	job := f.CreateJob(t, recruiter)
//	app := f.CreateApplication(t, f.CreateCandidate(t), job)
//	f.Advance(t, app, recruiter, model.StageScreening)
package fixtures
