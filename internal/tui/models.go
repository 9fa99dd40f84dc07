package tui

type View int

const (
	ViewMessages View = iota
	ViewTopics
	ViewFilters
	ViewAddFilter
	ViewReader
	ViewSearch
)

func (v View) String() string {
	switch v {
	case ViewMessages:
		return "messages"
	case ViewTopics:
		return "topics"
	case ViewFilters:
		return "filters"
	case ViewAddFilter:
		return "add filter"
	case ViewReader:
		return "reader"
	case ViewSearch:
		return "search"
	default:
		return "unknown"
	}
}
