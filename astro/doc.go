// Package astro converts between equatorial and horizontal coordinates,
// computes sidereal time and hour angles, and parses or formats
// sexagesimal angle strings as the imaging server reports them.
//
// Angles cross the package boundary in degrees; radians are used only
// internally.
package astro
