package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/tui/styles"
)

// ContentList is a scrollable list of content items with an inline fuzzy filter
type ContentList struct {
	items       []domain.ContentItem
	filteredIdx []int // Indices into items; nil when not filtering
	filterQuery string

	cursor int
	offset int
	width  int
	height int
}

// NewContentList creates an empty list
func NewContentList() ContentList {
	return ContentList{}
}

// SetItems replaces the list contents, keeping the filter
func (c *ContentList) SetItems(items []domain.ContentItem) {
	c.items = items
	c.applyFilter()
}

// SetSize sets the rendering area
func (c *ContentList) SetSize(width, height int) {
	c.width = width
	c.height = height
	c.ensureVisible()
}

// SetFilter narrows the list to fuzzy matches of query
func (c *ContentList) SetFilter(query string) {
	c.filterQuery = query
	c.applyFilter()
}

// FilterQuery returns the active filter
func (c ContentList) FilterQuery() string {
	return c.filterQuery
}

// Len returns the number of visible rows
func (c ContentList) Len() int {
	if c.filteredIdx != nil {
		return len(c.filteredIdx)
	}
	return len(c.items)
}

// Selected returns the item under the cursor
func (c ContentList) Selected() (domain.ContentItem, bool) {
	if c.Len() == 0 {
		return domain.ContentItem{}, false
	}
	return c.itemAt(c.cursor), true
}

func (c ContentList) itemAt(row int) domain.ContentItem {
	if c.filteredIdx != nil {
		return c.items[c.filteredIdx[row]]
	}
	return c.items[row]
}

// MoveCursor moves the selection by delta rows, clamped
func (c *ContentList) MoveCursor(delta int) {
	c.cursor += delta
	if c.cursor >= c.Len() {
		c.cursor = c.Len() - 1
	}
	if c.cursor < 0 {
		c.cursor = 0
	}
	c.ensureVisible()
}

// PageSize returns how many rows fit
func (c ContentList) PageSize() int {
	return max(c.height, 1)
}

func (c *ContentList) applyFilter() {
	if c.filterQuery == "" {
		c.filteredIdx = nil
		c.MoveCursor(0)
		return
	}

	names := make([]string, len(c.items))
	for i, item := range c.items {
		names[i] = strings.ToLower(item.Name)
	}
	matches := fuzzy.Find(strings.ToLower(c.filterQuery), names)

	c.filteredIdx = make([]int, len(matches))
	for i, match := range matches {
		c.filteredIdx[i] = match.Index
	}

	// Reset cursor to first match
	c.cursor = 0
	c.offset = 0
}

func (c *ContentList) ensureVisible() {
	page := c.PageSize()
	if c.cursor < c.offset {
		c.offset = c.cursor
	}
	if c.cursor >= c.offset+page {
		c.offset = c.cursor - page + 1
	}
	if c.offset < 0 {
		c.offset = 0
	}
}

// View renders the visible rows
func (c ContentList) View() string {
	if c.Len() == 0 {
		if c.filterQuery != "" {
			return styles.DimStyle.Render("  no matches")
		}
		return styles.DimStyle.Render("  no content")
	}

	end := min(c.offset+c.PageSize(), c.Len())
	rows := make([]string, 0, end-c.offset)
	for row := c.offset; row < end; row++ {
		rows = append(rows, c.renderRow(c.itemAt(row), row == c.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (c ContentList) renderRow(item domain.ContentItem, selected bool) string {
	status := styles.UncachedDot
	if item.Cached() {
		status = styles.CachedDot
	}

	kind := " "
	if item.IsVideo() {
		kind = styles.VideoChar
	}

	detail := fmt.Sprintf("%4.0fs", item.DisplayDuration().Seconds())
	if item.IsVideo() {
		detail = "video"
	}
	if item.Position != nil {
		detail = fmt.Sprintf("#%-3d %s", *item.Position, detail)
	}

	nameWidth := c.width - lipgloss.Width(detail) - 8
	name := styles.Truncate(item.Name, nameWidth)
	gap := max(nameWidth-lipgloss.Width(name), 0)
	line := fmt.Sprintf("%s %s %s%s  %s", status, kind, name, strings.Repeat(" ", gap), detail)

	if selected {
		return styles.SelectedItemStyle.Render(line)
	}
	return styles.NormalItemStyle.Render(line)
}
