package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

// BookingState is the coarse state of a student's booking screen.
type BookingState string

const (
	StateDisconnected BookingState = "disconnected"
	StateIdle         BookingState = "connected-idle"
	StateLoading      BookingState = "loading"
	StateModalCreate  BookingState = "modal-open:create"
	StateModalEdit    BookingState = "modal-open:edit"
	StateError        BookingState = "error"
)

// BookingGateway is the calendar session used by the orchestrator.
type BookingGateway interface {
	Connected() bool
	Identity() *models.CalendarIdentity
	Connect(ctx context.Context, code string) (*models.CalendarIdentity, error)
	SignOut(ctx context.Context) error
	ListEvents(ctx context.Context, date *time.Time) ([]models.Event, error)
	CreateEvent(ctx context.Context, form models.BookingForm) (*models.Event, error)
	UpdateEvent(ctx context.Context, id string, form models.BookingForm) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	Marker() string
}

// SlotAvailability resolves the open slots of a professor.
type SlotAvailability interface {
	Resolve(ctx context.Context, professorID string, date time.Time, events BookedEventLister) (*AvailabilityResolution, error)
}

// DisciplineLoader loads the discipline index of a class.
type DisciplineLoader interface {
	Load(ctx context.Context, grade, class string) (*DisciplineProfessorIndex, error)
}

// Student identifies the owner of an orchestrator.
type Student struct {
	ID    string
	Grade string
	Class string
}

// OrchestratorConfig tunes transient messages and form defaults.
type OrchestratorConfig struct {
	MessageTTL   time.Duration
	FormDuration int
}

// Message is a transient banner shown until ExpiresAt.
type Message struct {
	Code      string    `json:"code,omitempty"`
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FilterView is the JSON form of the filter state.
type FilterView struct {
	ViewMode   models.ViewMode `json:"view_mode"`
	Discipline string          `json:"discipline,omitempty"`
	Professor  string          `json:"professor,omitempty"`
	Date       string          `json:"date"`
}

// SlotView is one row of the slot list.
type SlotView struct {
	Time           models.TimeSlot `json:"time"`
	Past           bool            `json:"past"`
	Available      bool            `json:"available"`
	Clickable      bool            `json:"clickable"`
	Informational  bool            `json:"informational,omitempty"`
	HiddenByFilter bool            `json:"hidden_by_filter,omitempty"`
	Event          *models.Event   `json:"event,omitempty"`
	DurationLabel  string          `json:"duration_label,omitempty"`
}

// ModalView is the open create or edit form.
type ModalView struct {
	Mode  string             `json:"mode"`
	Form  models.BookingForm `json:"form"`
	Error *appErrors.Error   `json:"error,omitempty"`
}

// BookingView is the render-ready state of the booking screen.
type BookingView struct {
	State            BookingState             `json:"state"`
	Connected        bool                     `json:"connected"`
	Loading          bool                     `json:"loading"`
	Identity         *models.CalendarIdentity `json:"identity,omitempty"`
	Filter           FilterView               `json:"filter"`
	Disciplines      []models.Discipline      `json:"disciplines"`
	FilterProfessors []models.Professor       `json:"filter_professors,omitempty"`
	Availability     *AvailabilityResolution  `json:"availability,omitempty"`
	NotAvailable     bool                     `json:"not_available"`
	Slots            []SlotView               `json:"slots"`
	Events           []models.Event           `json:"events"`
	Modal            *ModalView               `json:"modal,omitempty"`
	Error            *Message                 `json:"error,omitempty"`
	Success          *Message                 `json:"success,omitempty"`
}

// BookingOrchestrator composes slots, availability and calendar events for one student and runs the
// create, edit and delete workflow. Network calls happen outside the lock; their results are applied
// only while the filter generation they were started under is still current.
type BookingOrchestrator struct {
	student     Student
	gateway     BookingGateway
	resolver    SlotAvailability
	disciplines DisciplineLoader
	slots       *TimeSlotGenerator
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         OrchestratorConfig

	mu           sync.Mutex
	filter       models.FilterState
	generation   uint64
	inflight     int
	index        *DisciplineProfessorIndex
	events       []models.Event
	availability *AvailabilityResolution
	form         *models.BookingForm
	formErr      *appErrors.Error
	errMsg       *Message
	successMsg   *Message
}

// NewBookingOrchestrator builds an orchestrator on today's date in "todos" mode.
func NewBookingOrchestrator(student Student, gateway BookingGateway, resolver SlotAvailability, disciplines DisciplineLoader, slots *TimeSlotGenerator, validate *validator.Validate, logger *zap.Logger, cfg OrchestratorConfig) *BookingOrchestrator {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = 3 * time.Second
	}
	if cfg.FormDuration <= 0 {
		cfg.FormDuration = 30
	}
	return &BookingOrchestrator{
		student:     student,
		gateway:     gateway,
		resolver:    resolver,
		disciplines: disciplines,
		slots:       slots,
		validator:   validate,
		logger:      logger.With(zap.String("student_id", student.ID)),
		cfg:         cfg,
		filter:      models.FilterState{ViewMode: models.ViewModeAll, Date: slots.Today()},
		index:       NewDisciplineProfessorIndex(nil),
	}
}

// Student returns the owner of the orchestrator.
func (o *BookingOrchestrator) Student() Student {
	return o.student
}

// Init loads the discipline index and the events of the current date.
// Events are fetched even when the discipline load fails; the first error wins.
func (o *BookingOrchestrator) Init(ctx context.Context) error {
	loadErr := o.LoadDisciplines(ctx)
	refreshErr := o.refresh(ctx, o.bump())
	if loadErr != nil {
		return loadErr
	}
	return refreshErr
}

// LoadDisciplines (re)loads the discipline index. A failure keeps the previous index.
func (o *BookingOrchestrator) LoadDisciplines(ctx context.Context) error {
	o.begin()
	idx, err := o.disciplines.Load(ctx, o.student.Grade, o.student.Class)
	o.end()

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.fail(err)
		return err
	}
	o.index = idx
	if o.filter.Discipline != "" {
		if _, ok := idx.Get(o.filter.Discipline); !ok {
			o.filter.Discipline, o.filter.Professor = "", ""
			o.availability = nil
		}
	}
	return nil
}

// Connect authorizes the calendar and loads the events of the current date.
func (o *BookingOrchestrator) Connect(ctx context.Context, code string) error {
	o.begin()
	_, err := o.gateway.Connect(ctx, code)
	o.end()
	if err != nil {
		o.mu.Lock()
		o.fail(err)
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.succeed("calendar connected")
	o.mu.Unlock()
	return o.refresh(ctx, o.bump())
}

// Disconnect signs the calendar out and drops everything read from it.
func (o *BookingOrchestrator) Disconnect(ctx context.Context) error {
	o.begin()
	err := o.gateway.SignOut(ctx)
	o.end()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	o.events = nil
	o.availability = nil
	o.closeForm()
	if err != nil {
		o.fail(err)
		return err
	}
	o.succeed("calendar disconnected")
	return nil
}

// Refresh re-reads events and availability for the current filter.
func (o *BookingOrchestrator) Refresh(ctx context.Context) error {
	return o.refresh(ctx, o.bump())
}

// SetDate selects the day shown.
func (o *BookingOrchestrator) SetDate(ctx context.Context, date time.Time) error {
	o.mu.Lock()
	o.filter.Date = o.slots.Day(date)
	gen := o.bumpLocked()
	o.mu.Unlock()
	return o.refresh(ctx, gen)
}

// SetViewMode switches the top-level mode. Leaving professor mode clears the discipline and professor filters.
func (o *BookingOrchestrator) SetViewMode(ctx context.Context, mode models.ViewMode) error {
	if !mode.Valid() {
		err := appErrors.Clone(appErrors.ErrValidation, "invalid view mode")
		o.mu.Lock()
		o.fail(err)
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.filter.ViewMode = mode
	if mode != models.ViewModeProfessor {
		o.filter.Discipline, o.filter.Professor = "", ""
		o.availability = nil
	}
	gen := o.bumpLocked()
	o.mu.Unlock()
	return o.refresh(ctx, gen)
}

// SelectDiscipline filters by discipline and switches to professor mode. A discipline with a single
// professor selects that professor and resolves their availability. An empty code clears the filter
// and returns to "todos".
func (o *BookingOrchestrator) SelectDiscipline(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	o.mu.Lock()
	if code == "" {
		o.filter.ViewMode = models.ViewModeAll
		o.filter.Discipline, o.filter.Professor = "", ""
		o.availability = nil
		gen := o.bumpLocked()
		o.mu.Unlock()
		return o.refresh(ctx, gen)
	}

	discipline, ok := o.index.Get(code)
	if !ok {
		err := appErrors.Clone(appErrors.ErrValidation, "unknown discipline")
		o.fail(err)
		o.mu.Unlock()
		return err
	}
	o.filter.ViewMode = models.ViewModeProfessor
	o.filter.Discipline = discipline.Code
	o.filter.Professor = ""
	o.availability = nil
	if len(discipline.Professors) == 1 {
		o.filter.Professor = discipline.Professors[0].Code
	}
	gen := o.bumpLocked()
	o.mu.Unlock()
	return o.refresh(ctx, gen)
}

// SelectProfessor narrows professor mode to one professor of the selected discipline. An empty code clears it.
func (o *BookingOrchestrator) SelectProfessor(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	o.mu.Lock()
	if code != "" {
		if o.filter.Discipline == "" {
			err := appErrors.Clone(appErrors.ErrValidation, "select a discipline first")
			o.fail(err)
			o.mu.Unlock()
			return err
		}
		if _, ok := o.index.Professor(o.filter.Discipline, code); !ok {
			err := appErrors.Clone(appErrors.ErrValidation, "professor does not teach the selected discipline")
			o.fail(err)
			o.mu.Unlock()
			return err
		}
		o.filter.ViewMode = models.ViewModeProfessor
	}
	o.filter.Professor = code
	o.availability = nil
	gen := o.bumpLocked()
	o.mu.Unlock()
	return o.refresh(ctx, gen)
}

// ClickSlot opens the create form for an open slot. Past slots, slots holding a displayed event and
// slots outside the selected professor's availability are ignored.
func (o *BookingOrchestrator) ClickSlot(ctx context.Context, raw string) error {
	slot, err := models.ParseTimeSlot(raw)
	if err != nil || !o.slots.Contains(slot) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid time slot")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	view := o.slotViewLocked(slot)
	if !view.Clickable {
		return nil
	}
	form := o.prefillLocked()
	form.Time = slot
	o.openForm(form)
	return nil
}

// NewBooking opens an empty create form prefilled from the filter, without a time.
func (o *BookingOrchestrator) NewBooking(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openForm(o.prefillLocked())
	return nil
}

// EditEvent opens the edit form for a listed event.
func (o *BookingOrchestrator) EditEvent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var event *models.Event
	for i := range o.events {
		if o.events[i].ID == id {
			event = &o.events[i]
			break
		}
	}
	if event == nil {
		err := appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		o.fail(err)
		return err
	}

	discipline, professor := event.Discipline, event.Professor
	if discipline == "" {
		discipline, professor, _ = parseBookingTitle(o.gateway.Marker(), event.Title)
	}
	start := event.Start.In(o.slots.Location())
	minutes := int(event.Duration() / time.Minute)
	if minutes <= 0 {
		minutes = o.cfg.FormDuration
	}
	o.openForm(models.BookingForm{
		EventID:         event.ID,
		Discipline:      discipline,
		Professor:       professor,
		Date:            start.Format(models.DateLayout),
		Time:            models.TimeSlotAt(start),
		DurationMinutes: minutes,
		Description:     event.Description,
	})
	return nil
}

// UpdateForm applies a partial change to the open form. Changing the discipline resets the professor,
// or sets it when the new discipline has exactly one professor.
func (o *BookingOrchestrator) UpdateForm(ctx context.Context, patch models.FormPatch) error {
	if err := o.validator.Struct(patch); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking form")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.form == nil {
		return appErrors.Clone(appErrors.ErrValidation, "no booking form is open")
	}
	form := *o.form

	if patch.Discipline != nil && strings.TrimSpace(*patch.Discipline) != form.Discipline {
		form.Discipline = strings.TrimSpace(*patch.Discipline)
		form.Professor = ""
		if d, ok := o.index.FindByName(form.Discipline); ok && len(d.Professors) == 1 {
			form.Professor = d.Professors[0].Name
		}
	}
	if patch.Professor != nil {
		form.Professor = strings.TrimSpace(*patch.Professor)
	}
	if patch.Date != nil {
		form.Date = strings.TrimSpace(*patch.Date)
	}
	if patch.Time != nil {
		if strings.TrimSpace(*patch.Time) == "" {
			form.Time = ""
		} else {
			slot, err := models.ParseTimeSlot(*patch.Time)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking time")
			}
			form.Time = slot
		}
	}
	if patch.DurationMinutes != nil {
		form.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Description != nil {
		form.Description = *patch.Description
	}

	o.form = &form
	o.formErr = nil
	return nil
}

// Save validates the open form and creates or updates the booking. Validation failures stay on the form and
// never reach the calendar. On success the form closes and the events of the current date are re-read.
func (o *BookingOrchestrator) Save(ctx context.Context) error {
	o.mu.Lock()
	if o.form == nil {
		o.mu.Unlock()
		return appErrors.Clone(appErrors.ErrValidation, "no booking form is open")
	}
	form := *o.form
	if err := o.validateFormLocked(form); err != nil {
		o.formErr = err
		o.mu.Unlock()
		return err
	}
	o.formErr = nil
	o.inflight++
	o.mu.Unlock()

	var err error
	if form.Editing() {
		_, err = o.gateway.UpdateEvent(ctx, form.EventID, form)
	} else {
		_, err = o.gateway.CreateEvent(ctx, form)
	}
	o.end()

	o.mu.Lock()
	if err != nil {
		o.fail(err)
		if appErrors.HasCode(err, appErrors.ErrValidation) {
			o.formErr = appErrors.FromError(err)
		}
		o.mu.Unlock()
		o.logger.Info("save booking failed", zap.Bool("editing", form.Editing()), zap.Error(err))
		return err
	}
	o.closeForm()
	if form.Editing() {
		o.succeed("booking updated")
	} else {
		o.succeed("booking created")
	}
	gen := o.bumpLocked()
	o.mu.Unlock()

	return o.refresh(ctx, gen)
}

// Cancel discards the open form.
func (o *BookingOrchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeForm()
	return nil
}

// DeleteEvent removes a booking. An event that is already gone counts as deleted.
func (o *BookingOrchestrator) DeleteEvent(ctx context.Context, id string) error {
	o.begin()
	err := o.gateway.DeleteEvent(ctx, id)
	o.end()

	o.mu.Lock()
	if err != nil && !appErrors.HasCode(err, appErrors.ErrNotFound) {
		o.fail(err)
		o.mu.Unlock()
		return err
	}
	if err != nil {
		o.logger.Debug("booking already removed", zap.String("event_id", id))
	}
	if o.form != nil && o.form.EventID == id {
		o.closeForm()
	}
	o.succeed("booking deleted")
	gen := o.bumpLocked()
	o.mu.Unlock()

	return o.refresh(ctx, gen)
}

// Events returns the events of the current date as last read.
func (o *BookingOrchestrator) Events() []models.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Event, len(o.events))
	copy(out, o.events)
	return out
}

// Filter returns the current filter state.
func (o *BookingOrchestrator) Filter() models.FilterState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filter
}

// View renders the current state.
func (o *BookingOrchestrator) View() BookingView {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.slots.now()
	connected := o.gateway.Connected()
	view := BookingView{
		Connected:   connected,
		Loading:     o.inflight > 0,
		Identity:    o.gateway.Identity(),
		Disciplines: o.index.Disciplines(),
		Filter: FilterView{
			ViewMode:   o.filter.ViewMode,
			Discipline: o.filter.Discipline,
			Professor:  o.filter.Professor,
			Date:       o.filter.Date.Format(models.DateLayout),
		},
		Availability: o.availability,
		Events:       []models.Event{},
		Slots:        []SlotView{},
	}
	if o.filter.ViewMode == models.ViewModeProfessor && o.filter.Discipline != "" {
		view.FilterProfessors = o.index.ProfessorsFor(o.filter.Discipline)
	}
	if o.availability != nil && !o.availability.AcceptsBookings {
		view.NotAvailable = true
	}
	for _, event := range o.events {
		if o.shouldShowLocked(event) {
			view.Events = append(view.Events, event)
		}
	}
	for _, slot := range o.slots.Generate(o.filter.Date) {
		view.Slots = append(view.Slots, o.slotViewLocked(slot))
	}
	if o.form != nil {
		mode := "create"
		if o.form.Editing() {
			mode = "edit"
		}
		view.Modal = &ModalView{Mode: mode, Form: *o.form, Error: o.formErr}
	}
	if o.errMsg != nil && now.Before(o.errMsg.ExpiresAt) {
		msg := *o.errMsg
		view.Error = &msg
	}
	if o.successMsg != nil && now.Before(o.successMsg.ExpiresAt) {
		msg := *o.successMsg
		view.Success = &msg
	}

	switch {
	case view.Error != nil:
		view.State = StateError
	case view.Loading:
		view.State = StateLoading
	case view.Modal != nil && view.Modal.Mode == "edit":
		view.State = StateModalEdit
	case view.Modal != nil:
		view.State = StateModalCreate
	case connected:
		view.State = StateIdle
	default:
		view.State = StateDisconnected
	}
	return view
}

// refresh reads events and, in professor mode with a professor selected, availability. Results are dropped
// when the filter changed while the calls were in flight.
func (o *BookingOrchestrator) refresh(ctx context.Context, gen uint64) error {
	o.mu.Lock()
	filter := o.filter
	o.inflight++
	o.mu.Unlock()
	defer o.end()

	var (
		events       []models.Event
		availability *AvailabilityResolution
		eventsErr    error
		availErr     error
	)
	var booked BookedEventLister
	if o.gateway.Connected() {
		date := filter.Date
		events, eventsErr = o.gateway.ListEvents(ctx, &date)
		if eventsErr == nil {
			booked = fetchedEvents(events)
		}
	}
	if filter.ViewMode == models.ViewModeProfessor && filter.Professor != "" && !appErrors.HasCode(eventsErr, appErrors.ErrCalendarAuth) {
		availability, availErr = o.resolver.Resolve(ctx, filter.Professor, filter.Date, booked)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		o.logger.Debug("discarding stale booking refresh", zap.Uint64("generation", gen), zap.Uint64("current", o.generation))
		return nil
	}

	if eventsErr != nil {
		o.events = nil
		o.fail(eventsErr)
		return eventsErr
	}
	o.events = events
	o.availability = availability
	if availErr != nil {
		o.fail(availErr)
		return availErr
	}
	return nil
}

// fetchedEvents hands an already read event list to the resolver so the day is listed once per refresh.
type fetchedEvents []models.Event

func (f fetchedEvents) Connected() bool { return true }

func (f fetchedEvents) ListEvents(ctx context.Context, date *time.Time) ([]models.Event, error) {
	return f, nil
}

func (o *BookingOrchestrator) slotViewLocked(slot models.TimeSlot) SlotView {
	view := SlotView{
		Time:          slot,
		Past:          o.slots.IsPast(o.filter.Date, slot),
		Informational: o.filter.ViewMode == models.ViewModeMine,
	}

	at := slot.On(o.filter.Date)
	for i := range o.events {
		if !o.events[i].Covers(at) {
			continue
		}
		if o.shouldShowLocked(o.events[i]) {
			event := o.events[i]
			view.Event = &event
			view.DurationLabel = event.DurationLabel()
		} else {
			view.HiddenByFilter = true
		}
		break
	}

	open := true
	if o.filter.ViewMode == models.ViewModeProfessor && o.filter.Professor != "" {
		open = o.availability.IsOpen(slot)
	}
	view.Available = open && view.Event == nil
	view.Clickable = view.Available && !view.Past
	return view
}

// shouldShowLocked applies the professor-mode filter to an event. Other modes show every booking.
func (o *BookingOrchestrator) shouldShowLocked(event models.Event) bool {
	if o.filter.ViewMode != models.ViewModeProfessor || o.filter.Discipline == "" {
		return true
	}
	discipline, ok := o.index.Get(o.filter.Discipline)
	if !ok {
		return true
	}
	eventDiscipline, eventProfessor := event.Discipline, event.Professor
	if eventDiscipline == "" {
		var parsed bool
		if eventDiscipline, eventProfessor, parsed = parseBookingTitle(o.gateway.Marker(), event.Title); !parsed {
			return false
		}
	}
	if !sameName(eventDiscipline, discipline.Name) {
		return false
	}
	if o.filter.Professor != "" && len(discipline.Professors) > 1 {
		professor, ok := o.index.Professor(discipline.Code, o.filter.Professor)
		return ok && sameName(eventProfessor, professor.Name)
	}
	return true
}

func (o *BookingOrchestrator) prefillLocked() models.BookingForm {
	form := models.BookingForm{
		Date:            o.filter.Date.Format(models.DateLayout),
		DurationMinutes: o.cfg.FormDuration,
	}
	if discipline, ok := o.index.Get(o.filter.Discipline); ok {
		form.Discipline = discipline.Name
		switch {
		case o.filter.Professor != "":
			if p, ok := o.index.Professor(discipline.Code, o.filter.Professor); ok {
				form.Professor = p.Name
			}
		case len(discipline.Professors) == 1:
			form.Professor = discipline.Professors[0].Name
		}
	}
	return form
}

func (o *BookingOrchestrator) validateFormLocked(form models.BookingForm) *appErrors.Error {
	if o.filter.ViewMode == models.ViewModeProfessor && o.filter.Discipline != "" && strings.TrimSpace(form.Professor) == "" {
		if len(o.index.ProfessorsFor(o.filter.Discipline)) > 1 {
			return appErrors.Clone(appErrors.ErrValidation, "select a professor for this discipline")
		}
	}
	if err := o.validator.Struct(form); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "discipline, professor, date and time are required")
	}
	if _, err := models.ParseTimeSlot(string(form.Time)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking time")
	}
	if discipline, ok := o.index.FindByName(form.Discipline); ok {
		member := false
		for _, p := range discipline.Professors {
			if sameName(p.Name, form.Professor) {
				member = true
				break
			}
		}
		if !member {
			return appErrors.Clone(appErrors.ErrValidation, "professor does not teach the selected discipline")
		}
	}
	return nil
}

func (o *BookingOrchestrator) openForm(form models.BookingForm) {
	o.form = &form
	o.formErr = nil
}

func (o *BookingOrchestrator) closeForm() {
	o.form = nil
	o.formErr = nil
}

// fail records err as the transient error banner. Callers hold the lock.
func (o *BookingOrchestrator) fail(err error) {
	appErr := appErrors.FromError(err)
	o.errMsg = &Message{Code: appErr.Code, Text: appErr.Message, ExpiresAt: o.slots.now().Add(o.cfg.MessageTTL)}
	if appErrors.HasCode(err, appErrors.ErrCalendarAuth) {
		o.events = nil
		o.availability = nil
		o.errMsg.Text = "calendar session expired, connect again"
	}
}

func (o *BookingOrchestrator) succeed(text string) {
	o.errMsg = nil
	o.successMsg = &Message{Text: text, ExpiresAt: o.slots.now().Add(o.cfg.MessageTTL)}
}

func (o *BookingOrchestrator) bump() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bumpLocked()
}

func (o *BookingOrchestrator) bumpLocked() uint64 {
	o.generation++
	return o.generation
}

func (o *BookingOrchestrator) begin() {
	o.mu.Lock()
	o.inflight++
	o.mu.Unlock()
}

func (o *BookingOrchestrator) end() {
	o.mu.Lock()
	if o.inflight > 0 {
		o.inflight--
	}
	o.mu.Unlock()
}
