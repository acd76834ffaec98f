// Package application provides application initialization and dependency wiring.
// It builds the site table, vendor capabilities, tracker facade, script loader,
// API router and HTTP server, keeping the main package focused on CLI parsing,
// signal handling and orchestration.
package application
