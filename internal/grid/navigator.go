package grid

// Navigator asks the spreadsheet host to focus a location. An empty or
// wildcard ref focuses the sheet as a whole.
type Navigator interface {
	Focus(sheetID int, ref string) error
}

// NopNavigator ignores focus requests. Used when no host is attached.
type NopNavigator struct{}

func (NopNavigator) Focus(int, string) error { return nil }
