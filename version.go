// Package mediagrade scores image and video quality before media is sent for
// verification.
package mediagrade

// Version is the application version reported at startup.
const Version = "0.3.1"
