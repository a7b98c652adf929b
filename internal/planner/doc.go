// Package planner decides how an accepted upload must be transformed to meet a
// field's hosting limits: target formats, target dimensions, video bitrate and
// thumbnail size. Planning is pure; nothing here touches the filesystem.
//
// Bitrates follow the power-of-0.75 law: when a frame's area changes by a
// factor k, the bitrate needed for comparable quality changes by k^0.75.
package planner
