package model

import "time"

type User struct {
	ID           string
	PhoneNumber  string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

func (u User) Ref() *UserRef {
	return &UserRef{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
	}
}
