// Package tools wraps host command execution used when preparing CAN interfaces.
package tools
