package memory

import (
	"testing"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, events []model.Event) repository.Store {
		return New(events...)
	})
}
