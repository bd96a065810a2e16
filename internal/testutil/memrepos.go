package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/domain/loan"
	"github.com/xiebiao/elibrary/internal/domain/request"
	"github.com/xiebiao/elibrary/internal/domain/reservation"
	"github.com/xiebiao/elibrary/internal/domain/user"
)

// =========================================
// 用户内存仓储
// =========================================

// MemUserRepo 内存用户仓储
type MemUserRepo struct {
	mu    sync.Mutex
	seq   uint
	users map[uint]*user.User
}

// NewMemUserRepo 创建内存用户仓储
func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{users: make(map[uint]*user.User)}
}

// Seed 预置用户并返回分配的ID
func (r *MemUserRepo) Seed(u *user.User) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	u.ID = r.seq
	r.users[u.ID] = cloneUser(u)
	return u.ID
}

func (r *MemUserRepo) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return user.ErrEmailDuplicate
		}
	}
	r.seq++
	u.ID = r.seq
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *MemUserRepo) FindByID(ctx context.Context, id uint) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemUserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (r *MemUserRepo) LockByID(ctx context.Context, id uint) (*user.User, error) {
	return r.FindByID(ctx, id)
}

func (r *MemUserRepo) Update(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *MemUserRepo) AdjustBorrowedCount(ctx context.Context, id uint, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	// 与GREATEST(borrowed_count + ?, 0)语义对齐
	u.BorrowedCount += delta
	if u.BorrowedCount < 0 {
		u.BorrowedCount = 0
	}
	return nil
}

func (r *MemUserRepo) RecountBorrowed(ctx context.Context, id uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, user.ErrUserNotFound
	}
	return u.BorrowedCount, nil
}

func cloneUser(u *user.User) *user.User {
	c := *u
	return &c
}

// =========================================
// 图书内存仓储(书目+副本)
// =========================================

// MemBookRepo 内存图书仓储
type MemBookRepo struct {
	mu      sync.Mutex
	bookSeq uint
	itemSeq uint
	books   map[uint]*book.Book
	items   map[uint]*book.BookItem
}

// NewMemBookRepo 创建内存图书仓储
func NewMemBookRepo() *MemBookRepo {
	return &MemBookRepo{
		books: make(map[uint]*book.Book),
		items: make(map[uint]*book.BookItem),
	}
}

// SeedBook 预置书目并返回分配的ID
func (r *MemBookRepo) SeedBook(b *book.Book) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookSeq++
	b.ID = r.bookSeq
	r.books[b.ID] = cloneBook(b)
	return b.ID
}

// SeedItem 预置副本并同步书目计数,返回分配的ID
func (r *MemBookRepo) SeedItem(i *book.BookItem) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemSeq++
	i.ID = r.itemSeq
	r.items[i.ID] = cloneItem(i)
	if b, ok := r.books[i.BookID]; ok {
		b.TotalCopies++
		if i.Status == book.ItemStatusAvailable {
			b.AvailableCopies++
		}
	}
	return i.ID
}

func (r *MemBookRepo) Create(ctx context.Context, b *book.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.books {
		if existing.ISBN == b.ISBN {
			return book.ErrISBNDuplicate
		}
	}
	r.bookSeq++
	b.ID = r.bookSeq
	r.books[b.ID] = cloneBook(b)
	return nil
}

func (r *MemBookRepo) FindByID(ctx context.Context, id uint) (*book.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, book.ErrBookNotFound
	}
	return cloneBook(b), nil
}

func (r *MemBookRepo) FindByISBN(ctx context.Context, isbn string) (*book.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.books {
		if b.ISBN == isbn {
			return cloneBook(b), nil
		}
	}
	return nil, book.ErrBookNotFound
}

func (r *MemBookRepo) Update(ctx context.Context, b *book.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[b.ID]; !ok {
		return book.ErrBookNotFound
	}
	r.books[b.ID] = cloneBook(b)
	return nil
}

func (r *MemBookRepo) List(ctx context.Context, params book.ListParams) ([]*book.Book, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*book.Book
	for _, b := range r.books {
		all = append(all, cloneBook(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := int64(len(all))
	start := (params.Page - 1) * params.PageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + params.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *MemBookRepo) LockByID(ctx context.Context, id uint) (*book.Book, error) {
	return r.FindByID(ctx, id)
}

func (r *MemBookRepo) AdjustAvailableCopies(ctx context.Context, id uint, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return book.ErrBookNotFound
	}
	// 与守卫表达式 available_copies + ? >= 0 语义对齐
	if b.AvailableCopies+delta < 0 {
		return book.ErrNoAvailableCopy
	}
	b.AvailableCopies += delta
	return nil
}

func (r *MemBookRepo) AddItem(ctx context.Context, item *book.BookItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Barcode == item.Barcode {
			return book.ErrBarcodeDuplicate
		}
	}
	b, ok := r.books[item.BookID]
	if !ok {
		return book.ErrBookNotFound
	}
	r.itemSeq++
	item.ID = r.itemSeq
	r.items[item.ID] = cloneItem(item)
	b.TotalCopies++
	b.AvailableCopies++
	return nil
}

func (r *MemBookRepo) FindItemByID(ctx context.Context, id uint) (*book.BookItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.items[id]
	if !ok {
		return nil, book.ErrItemNotFound
	}
	return cloneItem(i), nil
}

func (r *MemBookRepo) FindItemByBarcode(ctx context.Context, barcode string) (*book.BookItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.items {
		if i.Barcode == barcode {
			return cloneItem(i), nil
		}
	}
	return nil, book.ErrItemNotFound
}

func (r *MemBookRepo) LockItemByID(ctx context.Context, id uint) (*book.BookItem, error) {
	return r.FindItemByID(ctx, id)
}

func (r *MemBookRepo) UpdateItem(ctx context.Context, item *book.BookItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return book.ErrItemNotFound
	}
	r.items[item.ID] = cloneItem(item)
	return nil
}

func (r *MemBookRepo) AvailableItems(ctx context.Context, bookID uint) ([]*book.BookItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*book.BookItem
	for _, i := range r.items {
		if i.BookID == bookID && i.Status == book.ItemStatusAvailable {
			items = append(items, cloneItem(i))
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Barcode < items[b].Barcode })
	return items, nil
}

func (r *MemBookRepo) CountItemsByStatus(ctx context.Context, bookID uint, status book.ItemStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, i := range r.items {
		if i.BookID == bookID && i.Status == status {
			count++
		}
	}
	return count, nil
}

func cloneBook(b *book.Book) *book.Book {
	c := *b
	return &c
}

func cloneItem(i *book.BookItem) *book.BookItem {
	c := *i
	return &c
}

// =========================================
// 借阅内存仓储
// =========================================

// MemLoanRepo 内存借阅仓储
type MemLoanRepo struct {
	mu    sync.Mutex
	seq   uint
	loans map[uint]*loan.Loan
}

// NewMemLoanRepo 创建内存借阅仓储
func NewMemLoanRepo() *MemLoanRepo {
	return &MemLoanRepo{loans: make(map[uint]*loan.Loan)}
}

// Seed 预置借阅记录并返回分配的ID
func (r *MemLoanRepo) Seed(l *loan.Loan) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	l.ID = r.seq
	r.loans[l.ID] = cloneLoan(l)
	return l.ID
}

func (r *MemLoanRepo) Create(ctx context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	l.ID = r.seq
	r.loans[l.ID] = cloneLoan(l)
	return nil
}

func (r *MemLoanRepo) FindByID(ctx context.Context, id uint) (*loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, loan.ErrLoanNotFound
	}
	return cloneLoan(l), nil
}

func (r *MemLoanRepo) LockByID(ctx context.Context, id uint) (*loan.Loan, error) {
	return r.FindByID(ctx, id)
}

func (r *MemLoanRepo) Update(ctx context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loans[l.ID]; !ok {
		return loan.ErrLoanNotFound
	}
	r.loans[l.ID] = cloneLoan(l)
	return nil
}

func (r *MemLoanRepo) ListByUser(ctx context.Context, userID uint, activeOnly bool, page, pageSize int) ([]*loan.Loan, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*loan.Loan
	for _, l := range r.loans {
		if l.UserID != userID {
			continue
		}
		if activeOnly && !l.IsActive() {
			continue
		}
		matched = append(matched, cloneLoan(l))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *MemLoanRepo) CountActiveByUser(ctx context.Context, userID uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, l := range r.loans {
		if l.UserID == userID && l.IsActive() {
			count++
		}
	}
	return count, nil
}

func (r *MemLoanRepo) HasActiveLoan(ctx context.Context, userID, bookID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loans {
		if l.UserID == userID && l.BookID == bookID && l.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemLoanRepo) ListOverdueBatch(ctx context.Context, asOf time.Time, afterID uint, limit int) ([]*loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*loan.Loan
	for _, l := range r.loans {
		if l.ID > afterID && l.IsActive() && l.DueDate.Before(asOf) {
			matched = append(matched, cloneLoan(l))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemLoanRepo) ListDueSoonBatch(ctx context.Context, asOf time.Time, withinDays int, afterID uint, limit int) ([]*loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	horizon := asOf.Add(time.Duration(withinDays) * 24 * time.Hour)
	var matched []*loan.Loan
	for _, l := range r.loans {
		if l.ID > afterID && l.Status == loan.LoanStatusBorrowed &&
			!l.DueDate.Before(asOf) && l.DueDate.Before(horizon) {
			matched = append(matched, cloneLoan(l))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func cloneLoan(l *loan.Loan) *loan.Loan {
	c := *l
	return &c
}

// =========================================
// 预约内存仓储
// =========================================

// MemReservationRepo 内存预约仓储
type MemReservationRepo struct {
	mu           sync.Mutex
	seq          uint
	reservations map[uint]*reservation.Reservation
}

// NewMemReservationRepo 创建内存预约仓储
func NewMemReservationRepo() *MemReservationRepo {
	return &MemReservationRepo{reservations: make(map[uint]*reservation.Reservation)}
}

// Seed 预置预约并返回分配的ID
func (r *MemReservationRepo) Seed(res *reservation.Reservation) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	res.ID = r.seq
	r.reservations[res.ID] = cloneReservation(res)
	return res.ID
}

func (r *MemReservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	res.ID = r.seq
	r.reservations[res.ID] = cloneReservation(res)
	return nil
}

func (r *MemReservationRepo) FindByID(ctx context.Context, id uint) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound
	}
	return cloneReservation(res), nil
}

func (r *MemReservationRepo) LockByID(ctx context.Context, id uint) (*reservation.Reservation, error) {
	return r.FindByID(ctx, id)
}

func (r *MemReservationRepo) Update(ctx context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[res.ID]; !ok {
		return reservation.ErrReservationNotFound
	}
	r.reservations[res.ID] = cloneReservation(res)
	return nil
}

func (r *MemReservationRepo) FindActiveByUserAndBook(ctx context.Context, userID, bookID uint) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.UserID == userID && res.BookID == bookID && res.Status.IsActive() {
			return cloneReservation(res), nil
		}
	}
	return nil, reservation.ErrReservationNotFound
}

func (r *MemReservationRepo) LockOldestWaiting(ctx context.Context, bookID uint) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var waiting []*reservation.Reservation
	for _, res := range r.reservations {
		if res.BookID == bookID && res.Status == reservation.ReservationStatusWaiting {
			waiting = append(waiting, res)
		}
	}
	if len(waiting) == 0 {
		return nil, reservation.ErrReservationNotFound
	}
	// FIFO次序:(reserved_at, id)
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].ReservedAt.Equal(waiting[j].ReservedAt) {
			return waiting[i].ID < waiting[j].ID
		}
		return waiting[i].ReservedAt.Before(waiting[j].ReservedAt)
	})
	return cloneReservation(waiting[0]), nil
}

func (r *MemReservationRepo) ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*reservation.Reservation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*reservation.Reservation
	for _, res := range r.reservations {
		if res.UserID == userID {
			matched = append(matched, cloneReservation(res))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *MemReservationRepo) ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*reservation.Reservation
	for _, res := range r.reservations {
		if res.Status == reservation.ReservationStatusNotified &&
			res.NotifiedAt != nil && res.NotifiedAt.Before(cutoff) {
			matched = append(matched, cloneReservation(res))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemReservationRepo) CountActiveByBook(ctx context.Context, bookID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, res := range r.reservations {
		if res.BookID == bookID && res.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

func cloneReservation(res *reservation.Reservation) *reservation.Reservation {
	c := *res
	return &c
}

// =========================================
// 借阅申请内存仓储
// =========================================

// MemRequestRepo 内存借阅申请仓储
type MemRequestRepo struct {
	mu       sync.Mutex
	seq      uint
	requests map[uint]*request.BorrowRequest
}

// NewMemRequestRepo 创建内存借阅申请仓储
func NewMemRequestRepo() *MemRequestRepo {
	return &MemRequestRepo{requests: make(map[uint]*request.BorrowRequest)}
}

// Seed 预置申请并返回分配的ID
func (r *MemRequestRepo) Seed(req *request.BorrowRequest) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.ID = r.seq
	r.requests[req.ID] = cloneRequest(req)
	return req.ID
}

func (r *MemRequestRepo) Create(ctx context.Context, req *request.BorrowRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.ID = r.seq
	r.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *MemRequestRepo) FindByID(ctx context.Context, id uint) (*request.BorrowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, request.ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

func (r *MemRequestRepo) LockByID(ctx context.Context, id uint) (*request.BorrowRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *MemRequestRepo) Update(ctx context.Context, req *request.BorrowRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return request.ErrRequestNotFound
	}
	r.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *MemRequestRepo) HasPending(ctx context.Context, userID, bookID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.UserID == userID && req.BookID == bookID && req.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemRequestRepo) ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*request.BorrowRequest
	for _, req := range r.requests {
		if req.UserID == userID {
			matched = append(matched, cloneRequest(req))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginateRequests(matched, page, pageSize)
}

func (r *MemRequestRepo) ListPending(ctx context.Context, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*request.BorrowRequest
	for _, req := range r.requests {
		if req.IsPending() {
			matched = append(matched, cloneRequest(req))
		}
	}
	// 先到先审
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginateRequests(matched, page, pageSize)
}

func paginateRequests(matched []*request.BorrowRequest, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func cloneRequest(req *request.BorrowRequest) *request.BorrowRequest {
	c := *req
	return &c
}
