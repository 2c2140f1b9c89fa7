// Package mocks provides gomock implementations of the screening service ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	jobs := mocks.NewMockJobRepository(ctrl)
//	jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
package mocks

// Job and record result stores.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/namescreen/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=record_result_repository_mock.go github.com/target/namescreen/internal/core RecordResultRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/namescreen/internal/core ReaperRepository

// Object storage.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=object_store_mock.go github.com/target/namescreen/internal/core ObjectStore

// Delivery and locking.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=work_queue_mock.go github.com/target/namescreen/internal/core WorkQueue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=delivery_mock.go github.com/target/namescreen/internal/core Delivery
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_lock_mock.go github.com/target/namescreen/internal/core JobLock
