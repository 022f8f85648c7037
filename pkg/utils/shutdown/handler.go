// Package shutdown runs registered cleanup when the process exits normally or
// is interrupted.
package shutdown

import (
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
)

var waiter = new(sync.WaitGroup)
var isShuttingDown = false
var isShuttingDownMutex sync.Mutex

// IsShuttingDown lets long-running loops such as status --watch stop early.
func IsShuttingDown() bool {
	isShuttingDownMutex.Lock()
	defer isShuttingDownMutex.Unlock()
	return isShuttingDown
}

// AddJob registers work that WaitJobs must wait for; pair it with DoneJob.
func AddJob() {
	cleanupJobsMutex.Lock()
	waiter.Add(1)
	cleanupJobsMutex.Unlock()
}

func DoneJob() {
	waiter.Done()
}

// WaitJobs runs early cleanup, waits for jobs, then runs late cleanup.
// Cleanup runs in reverse registration order. Call it once before exit.
func WaitJobs() {
	waitJobs(false)
}

func waitJobs(isSignal bool) {
	isShuttingDownMutex.Lock()
	if isShuttingDown {
		isShuttingDownMutex.Unlock()
		return
	}
	isShuttingDown = true
	isShuttingDownMutex.Unlock()
	cleanupJobsMutex.Lock()
	early := slices.Clone(earlyCleanupJobs)
	late := slices.Clone(lateCleanupJobs)
	cleanupJobsMutex.Unlock()
	for i := len(early) - 1; i >= 0; i-- {
		early[i].Func(isSignal)
	}
	waiter.Wait()
	for i := len(late) - 1; i >= 0; i-- {
		late[i].Func(isSignal)
	}
}

type CleanupJob struct {
	Name string
	Func func(isSignal bool)
}

var earlyCleanupJobs = []CleanupJob{}
var lateCleanupJobs = []CleanupJob{}
var cleanupJobsMutex sync.Mutex

// AddEarlyCleanupJob runs before jobs are waited for, e.g. stopping a child process.
func AddEarlyCleanupJob(name string, job func(isSignal bool)) {
	cleanupJobsMutex.Lock()
	defer cleanupJobsMutex.Unlock()
	earlyCleanupJobs = append(earlyCleanupJobs, CleanupJob{Name: name, Func: job})
}

// AddLateCleanupJob runs after all jobs finished.
func AddLateCleanupJob(name string, job func(isSignal bool)) {
	cleanupJobsMutex.Lock()
	defer cleanupJobsMutex.Unlock()
	lateCleanupJobs = append(lateCleanupJobs, CleanupJob{Name: name, Func: job})
}

func DeleteEarlyCleanupJob(name string) {
	cleanupJobsMutex.Lock()
	defer cleanupJobsMutex.Unlock()
	earlyCleanupJobs = slices.DeleteFunc(earlyCleanupJobs, func(job CleanupJob) bool {
		return job.Name == name
	})
}

func DeleteLateCleanupJob(name string) {
	cleanupJobsMutex.Lock()
	defer cleanupJobsMutex.Unlock()
	lateCleanupJobs = slices.DeleteFunc(lateCleanupJobs, func(job CleanupJob) bool {
		return job.Name == name
	})
}

// SignalExitCode is used when SIGINT or SIGTERM ends the process.
const SignalExitCode = 130

var exit = os.Exit

func init() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		waitJobs(true)
		exit(SignalExitCode)
	}()
}
