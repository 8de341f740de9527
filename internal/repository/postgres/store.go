package postgres

import "github.com/Dhoini/job-tracker/internal/repository"

// NewStore собирает все репозитории поверх одного пула.
func NewStore(db DB) (*repository.Store, error) {
	users, err := NewUserRepository(db)
	if err != nil {
		return nil, err
	}
	profiles, err := NewProfileRepository(db)
	if err != nil {
		return nil, err
	}
	items, err := NewItemRepository(db)
	if err != nil {
		return nil, err
	}
	events, err := NewBillingEventRepository(db)
	if err != nil {
		return nil, err
	}
	return &repository.Store{Users: users, Profiles: profiles, Items: items, Events: events}, nil
}
