// Package domain defines the Item entity and its status transitions.
package domain
