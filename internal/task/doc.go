// Package task schedules and tracks asynchronous AI-generation jobs.
//
// A Registry owns every task record and applies only validated state
// transitions. A Scheduler promotes queued tasks into a fixed number of
// execution slots, ordered by priority and age. A Driver advances the
// elapsed time of running tasks and, once a task reaches its estimated
// duration, asks a Resolver for the terminal outcome. The Manager ties
// these together behind the operations a user interface calls, and the
// Runner drives the Manager from a periodic tick.
package task
