package domain

import "strconv"

// Collection - коллекция отслеживаемых записей пользователя.
type Collection string

const (
	CollectionApplications Collection = "applications"
	CollectionDocuments    Collection = "documents"
)

// Collections перечисляет все коллекции.
var Collections = []Collection{CollectionApplications, CollectionDocuments}

// Служебные поля, которыми владеет сервер.
const (
	FieldID        = "id"
	FieldUserID    = "userId"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Valid сообщает, известна ли коллекция.
func (c Collection) Valid() bool {
	return c == CollectionApplications || c == CollectionDocuments
}

// DateField - поле, в котором клиент хранит свою дату создания записи.
func (c Collection) DateField() string {
	if c == CollectionDocuments {
		return "uploadDate"
	}
	return "dateCreated"
}

// FilterField - поле для точного фильтра в списке.
func (c Collection) FilterField() string {
	if c == CollectionDocuments {
		return "type"
	}
	return "status"
}

// SearchFields - поля для подстрочного поиска q.
func (c Collection) SearchFields() []string {
	if c == CollectionDocuments {
		return []string{"name"}
	}
	return []string{"title", "company"}
}

// Item - запись коллекции (заявка или документ). Содержимое непрозрачно для сервера,
// кроме id и служебных полей.
type Item map[string]any

// ID возвращает идентификатор записи или "" если его нет.
func (it Item) ID() string {
	switch v := it[FieldID].(type) {
	case string:
		return v
	case float64:
		// числовые id приходят из JSON как float64
		return formatNumber(v)
	}
	return ""
}

// String возвращает строковое значение поля или "".
func (it Item) String(field string) string {
	s, _ := it[field].(string)
	return s
}

// Public возвращает копию записи без служебных полей.
func (it Item) Public() Item {
	out := make(Item, len(it))
	for k, v := range it {
		switch k {
		case FieldUserID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}

// ListFilter параметры фильтрации списка.
type ListFilter struct {
	Equals string // значение status (заявки) или type (документы)
	Query  string // подстрока по title/company или name
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
