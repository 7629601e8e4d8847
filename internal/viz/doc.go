// Package viz renders satellite sessions in the terminal.
//
//   - [LiveModel]: Bubble Tea program that steps a session and draws it
//   - [OrbitView]: Braille rendering of the Earth, orbit trail and body axes
//   - [RenderReport], [Plot]: static report panel and asciigraph charts
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the initial configuration
//	Tab   - Cycle controller parameter
//	Up/K  - Increase parameter (+10%)
//	Down/J- Decrease parameter (-10%)
//	X/Y/Z - Rotate camera (shift reverses)
//	+/-   - Zoom
//	?     - Help
package viz
