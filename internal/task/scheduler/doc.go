// Package scheduler triggers recurring jobs from cron expressions or fixed
// intervals. The executor daemon uses it to submit controller settings
// switches (day/night settings files) at configured times.
package scheduler
