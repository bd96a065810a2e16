package mysql

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/elibrary/internal/infrastructure/config"
)

// NewDB 创建数据库连接
// 设计说明：
// 1. 使用GORM v2作为ORM框架
// 2. 配置连接池参数（MaxOpenConns、MaxIdleConns、ConnMaxLifetime）
// 3. 开发环境开启SQL日志，生产环境关闭
// 4. 自动迁移表结构（AutoMigrate）
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	// 1. 构建DSN连接字符串
	dsn := cfg.Database.DSN()

	// 2. 配置GORM日志
	logLevel := logger.Silent
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info // 开发环境打印SQL
	}

	// 3. 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 4. 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// 5. 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	log.Println("✓ 数据库连接成功")

	// 6. 自动迁移表结构（开发环境）
	// 注意：生产环境应使用专门的迁移工具（如golang-migrate）
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return db, nil
}

// autoMigrate 自动迁移表结构
// 注意：这里使用GORM的模型定义（带tag），不是domain层的实体
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&BookModel{},
		&BookItemModel{},
		&LoanModel{},
		&ReservationModel{},
		&BorrowRequestModel{},
	)
}

// UserModel GORM用户模型
// 设计说明：
// 1. 这是infrastructure层的数据模型，包含GORM tag
// 2. domain/user/entity.go是领域实体，不依赖GORM
// 3. Repository负责两者之间的转换
// 4. BorrowedCount是派生缓存，只在借阅状态变更的同一事务内调整
type UserModel struct {
	ID            uint           `gorm:"primaryKey"`
	Email         string         `gorm:"uniqueIndex;size:100;not null;comment:邮箱"`
	Password      string         `gorm:"size:255;not null;comment:密码（bcrypt加密）"`
	Nickname      string         `gorm:"size:50;not null;comment:昵称"`
	Role          int            `gorm:"type:tinyint;default:1;not null;comment:角色(1会员2馆员)"`
	BorrowedCount int            `gorm:"default:0;not null;comment:在借数量(派生缓存)"`
	CreatedAt     time.Time      `gorm:"comment:创建时间"`
	UpdatedAt     time.Time      `gorm:"comment:更新时间"`
	DeletedAt     gorm.DeletedAt `gorm:"index;comment:删除时间（软删除）"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// BookModel GORM书目模型
// 设计说明:
// 1. ISBN有唯一索引,防止重复
// 2. Authors/Categories存JSON列(多值字段,读多写少)
// 3. AvailableCopies是派生缓存,守卫表达式保证非负
type BookModel struct {
	ID              uint           `gorm:"primaryKey"`
	ISBN            string         `gorm:"uniqueIndex;size:20;not null;comment:ISBN号"`
	Title           string         `gorm:"index:idx_search;size:200;not null;comment:书名"`
	Authors         string         `gorm:"index:idx_search;size:500;not null;comment:作者(JSON数组)"`
	Categories      string         `gorm:"size:500;comment:分类标签(JSON数组)"`
	Publisher       string         `gorm:"size:100;comment:出版社"`
	TotalCopies     int            `gorm:"default:0;not null;comment:馆藏总册数"`
	AvailableCopies int            `gorm:"default:0;not null;comment:可借册数(派生缓存)"`
	PublishedAt     *time.Time     `gorm:"comment:出版时间"`
	CoverURL        string         `gorm:"size:500;comment:封面图片URL"`
	Description     string         `gorm:"type:text;comment:图书描述"`
	CreatedAt       time.Time      `gorm:"index;comment:创建时间"`
	UpdatedAt       time.Time      `gorm:"comment:更新时间"`
	DeletedAt       gorm.DeletedAt `gorm:"index;comment:删除时间(软删除)"`
}

// TableName 指定表名
func (BookModel) TableName() string {
	return "books"
}

// BookItemModel GORM图书副本模型
// 设计说明:
// 1. Barcode是馆藏条码,唯一索引
// 2. 复合索引(book_id, status)支撑"按书查可借副本"
type BookItemModel struct {
	ID        uint      `gorm:"primaryKey"`
	BookID    uint      `gorm:"index:idx_book_status;not null;comment:书目ID"`
	Barcode   string    `gorm:"uniqueIndex;size:32;not null;comment:馆藏条码"`
	Status    int       `gorm:"index:idx_book_status;type:tinyint;default:1;comment:副本状态(1在馆2借出)"`
	Location  string    `gorm:"size:50;comment:馆藏位置"`
	Condition string    `gorm:"size:20;comment:品相"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (BookItemModel) TableName() string {
	return "book_items"
}

// LoanModel GORM借阅记录模型
// 设计说明:
// 1. 借阅账本只追加不删除,不用软删除
// 2. 复合索引(status, due_date)支撑对账任务的逾期扫描
// 3. 复合索引(user_id, status)支撑借阅上限/重复借阅校验
type LoanModel struct {
	ID            uint       `gorm:"primaryKey"`
	UserID        uint       `gorm:"index:idx_user_status;not null;comment:借阅人ID"`
	ItemID        uint       `gorm:"index;not null;comment:副本ID"`
	BookID        uint       `gorm:"index;not null;comment:书目ID"`
	IssueDate     time.Time  `gorm:"not null;comment:借出时间"`
	DueDate       time.Time  `gorm:"index:idx_status_due,priority:2;not null;comment:到期时间"`
	ReturnDate    *time.Time `gorm:"comment:归还时间"`
	Status        int        `gorm:"index:idx_user_status;index:idx_status_due,priority:1;type:tinyint;default:1;comment:状态(1在借2逾期3已归还)"`
	Fine          int64      `gorm:"default:0;not null;comment:累计罚金(分)"`
	RenewCount    int        `gorm:"default:0;not null;comment:已续借次数"`
	DaysOverdue   int        `gorm:"default:0;not null;comment:逾期天数(对账维护)"`
	LastCheckedAt *time.Time `gorm:"comment:对账最后检查时间"`
	CreatedAt     time.Time  `gorm:"index;comment:创建时间"`
	UpdatedAt     time.Time  `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (LoanModel) TableName() string {
	return "loans"
}

// ReservationModel GORM预约模型
// 设计说明:
// 1. 复合索引(book_id, status, reserved_at)支撑FIFO出队
// 2. 复合索引(user_id, book_id, status)支撑防重复预约校验
// 3. 唯一性由"在事务内校验+行锁"保证(活跃状态有两个值,无法用单列唯一索引)
type ReservationModel struct {
	ID         uint       `gorm:"primaryKey"`
	UserID     uint       `gorm:"index:idx_user_book,priority:1;not null;comment:预约人ID"`
	BookID     uint       `gorm:"index:idx_user_book,priority:2;index:idx_queue,priority:1;not null;comment:书目ID"`
	ItemID     *uint      `gorm:"comment:到书绑定的副本ID"`
	ReservedAt time.Time  `gorm:"index:idx_queue,priority:3;not null;comment:预约时间"`
	NotifiedAt *time.Time `gorm:"index;comment:到书唤醒时间"`
	Status     int        `gorm:"index:idx_user_book,priority:3;index:idx_queue,priority:2;type:tinyint;default:1;comment:状态(1排队2待取3已借出4已取消)"`
	CreatedAt  time.Time  `gorm:"comment:创建时间"`
	UpdatedAt  time.Time  `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (ReservationModel) TableName() string {
	return "reservations"
}

// BorrowRequestModel GORM借阅申请模型
type BorrowRequestModel struct {
	ID            uint       `gorm:"primaryKey"`
	UserID        uint       `gorm:"index:idx_req_user_book,priority:1;not null;comment:申请人ID"`
	BookID        uint       `gorm:"index:idx_req_user_book,priority:2;not null;comment:书目ID"`
	ItemID        *uint      `gorm:"comment:副本ID(意向或批准分配)"`
	RequestedAt   time.Time  `gorm:"index;not null;comment:申请时间"`
	ProcessedAt   *time.Time `gorm:"comment:处理时间"`
	Status        int        `gorm:"index:idx_req_user_book,priority:3;type:tinyint;default:1;comment:状态(1待审批2已批准3已驳回4已撤回)"`
	MemberNote    string     `gorm:"size:500;comment:会员留言"`
	LibrarianNote string     `gorm:"size:500;comment:馆员批注"`
	ProcessedBy   *uint      `gorm:"comment:经办馆员ID"`
	CreatedAt     time.Time  `gorm:"comment:创建时间"`
	UpdatedAt     time.Time  `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (BorrowRequestModel) TableName() string {
	return "borrow_requests"
}
