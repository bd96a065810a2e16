package user

import (
	"time"
)

// Role 用户角色
// 设计说明:
// 1. 使用int类型而非string(节省存储空间,便于索引)
// 2. 角色决定借阅上限:会员3本,馆员10本(上限值来自配置)
// 3. 身份层(JWT)给出角色,流通引擎信任该输入,不做二次认证
type Role int

const (
	RoleMember    Role = 1 // 会员
	RoleLibrarian Role = 2 // 馆员
)

// String 实现Stringer接口(JWT Claims与日志使用字符串形式)
func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleLibrarian:
		return "librarian"
	default:
		return "unknown"
	}
}

// RoleFromString 从字符串解析角色(解析JWT Claims时使用)
func RoleFromString(s string) Role {
	if s == "librarian" {
		return RoleLibrarian
	}
	return RoleMember
}

// User 用户实体(聚合根)
// DDD设计说明:
// 1. 密码已加密存储(bcrypt),不应该有GetPassword()等方法暴露明文
// 2. BorrowedCount是派生缓存,不变量:
//    BorrowedCount == count(Loan where userId=ID and status ∈ {borrowed, overdue})
//    只允许在改变借阅状态的同一事务内调整,禁止在热路径上惰性重算
// 3. 领域实体不依赖GORM tag(infrastructure层的Repository实现时会处理映射)
type User struct {
	ID            uint
	Email         string
	Password      string // bcrypt哈希值
	Nickname      string
	Role          Role
	BorrowedCount int // 在借数量(派生缓存)
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser 创建新用户(工厂方法)
// hashedPassword必须是bcrypt加密后的密码
func NewUser(email, hashedPassword, nickname string, role Role) *User {
	now := time.Now()
	return &User{
		Email:         email,
		Password:      hashedPassword,
		Nickname:      nickname,
		Role:          role,
		BorrowedCount: 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanBorrow 检查是否还能借书
// maxBorrow由调用方根据角色从策略配置取得
func (u *User) CanBorrow(maxBorrow int) bool {
	return u.BorrowedCount < maxBorrow
}

// IsLibrarian 检查是否为馆员
func (u *User) IsLibrarian() bool {
	return u.Role == RoleLibrarian
}

// UpdateNickname 更新昵称(领域行为)
func (u *User) UpdateNickname(nickname string) {
	u.Nickname = nickname
	u.UpdatedAt = time.Now()
}
