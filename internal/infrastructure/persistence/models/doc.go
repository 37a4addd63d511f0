// Package models contains the GORM persistence models behind the
// repositories. Domain entities carry no ORM tags; each model maps to and
// from its entity with ToDomain and a ...ModelFromDomain constructor.
package models
