package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 集成测试辅助工具
//
// 运行前提:
// 1. API服务已在本机8080端口启动(cmd/api)
// 2. 数据库已预置馆员账号(LibrarianEmail/LibrarianPassword),
//    馆员角色无法通过公开注册接口获得
const (
	// BaseURL API基础URL
	BaseURL = "http://localhost:8080/api/v1"
	// Timeout HTTP请求超时时间
	Timeout = 10 * time.Second

	// LibrarianEmail 预置馆员账号
	LibrarianEmail    = "librarian@elibrary.local"
	LibrarianPassword = "Librarian1234"
)

// Response 统一响应结构
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// LoginData 登录响应数据
type LoginData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// BookData 书目响应数据
type BookData struct {
	ID              uint   `json:"id"`
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// ItemData 副本响应数据
type ItemData struct {
	ID      uint   `json:"id"`
	BookID  uint   `json:"book_id"`
	Barcode string `json:"barcode"`
	Status  string `json:"status"`
}

// LoanData 借阅记录响应数据
type LoanData struct {
	ID         uint   `json:"id"`
	UserID     uint   `json:"user_id"`
	ItemID     uint   `json:"item_id"`
	BookID     uint   `json:"book_id"`
	DueDate    string `json:"due_date"`
	Status     string `json:"status"`
	Fine       int64  `json:"fine"`
	RenewCount int    `json:"renew_count"`
}

// ReturnData 归还响应数据
type ReturnData struct {
	Loan                LoanData         `json:"loan"`
	NotifiedReservation *ReservationData `json:"notified_reservation"`
}

// ReservationData 预约响应数据
type ReservationData struct {
	ID     uint   `json:"id"`
	UserID uint   `json:"user_id"`
	BookID uint   `json:"book_id"`
	ItemID *uint  `json:"item_id"`
	Status string `json:"status"`
}

// RequestData 借阅申请响应数据
type RequestData struct {
	ID     uint   `json:"id"`
	UserID uint   `json:"user_id"`
	BookID uint   `json:"book_id"`
	Status string `json:"status"`
}

// doJSON 发送请求并解析统一响应
func doJSON(t *testing.T, method, url string, data interface{}, token string) *Response {
	t.Helper()

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		require.NoError(t, err, "JSON序列化失败")
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err, "创建HTTP请求失败")

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: Timeout}
	resp, err := client.Do(req)
	require.NoError(t, err, "发送HTTP请求失败(服务是否已启动?)")
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "读取响应体失败")

	var result Response
	err = json.Unmarshal(raw, &result)
	require.NoError(t, err, "解析JSON响应失败: %s", string(raw))

	return &result
}

// PostJSON 发送POST请求
func PostJSON(t *testing.T, url string, data interface{}, token string) *Response {
	t.Helper()
	return doJSON(t, http.MethodPost, url, data, token)
}

// GetJSON 发送GET请求
func GetJSON(t *testing.T, url string, token string) *Response {
	t.Helper()
	return doJSON(t, http.MethodGet, url, nil, token)
}

// seq 进程内序号,与时间戳一起保证测试数据唯一
var seq atomic.Int64

// GenerateTestEmail 生成唯一的测试邮箱
func GenerateTestEmail(prefix string) string {
	return fmt.Sprintf("%s_%d_%d@test.com", prefix, time.Now().Unix(), seq.Add(1))
}

// GenerateTestISBN 生成唯一的ISBN-13
func GenerateTestISBN() string {
	n := time.Now().UnixNano() + seq.Add(1)
	return fmt.Sprintf("978%010d", n%10000000000)
}

// GenerateTestBarcode 生成唯一的馆藏条码
func GenerateTestBarcode() string {
	return fmt.Sprintf("LIB-%d-%d", time.Now().UnixNano(), seq.Add(1))
}

// RegisterTestMember 注册会员并返回Token
func RegisterTestMember(t *testing.T, nickname string) (email string, token string) {
	t.Helper()

	email = GenerateTestEmail(nickname)
	registerReq := map[string]string{
		"email":    email,
		"password": "Test1234",
		"nickname": nickname,
	}
	registerResp := PostJSON(t, BaseURL+"/users/register", registerReq, "")
	require.Equal(t, 0, registerResp.Code, "注册失败: %s", registerResp.Message)

	loginReq := map[string]string{
		"email":    email,
		"password": "Test1234",
	}
	loginResp := PostJSON(t, BaseURL+"/users/login", loginReq, "")
	require.Equal(t, 0, loginResp.Code, "登录失败: %s", loginResp.Message)

	var loginData LoginData
	err := json.Unmarshal(loginResp.Data, &loginData)
	require.NoError(t, err, "解析登录响应失败")

	return email, loginData.AccessToken
}

// LoginLibrarian 登录预置馆员账号并返回Token
func LoginLibrarian(t *testing.T) string {
	t.Helper()

	loginReq := map[string]string{
		"email":    LibrarianEmail,
		"password": LibrarianPassword,
	}
	loginResp := PostJSON(t, BaseURL+"/users/login", loginReq, "")
	require.Equal(t, 0, loginResp.Code,
		"馆员登录失败(数据库是否预置了%s?): %s", LibrarianEmail, loginResp.Message)

	var loginData LoginData
	err := json.Unmarshal(loginResp.Data, &loginData)
	require.NoError(t, err, "解析登录响应失败")

	return loginData.AccessToken
}

// PublishTestBook 建档书目并登记copies册副本,返回书目ID与副本ID列表
func PublishTestBook(t *testing.T, librarianToken, title string, copies int) (uint, []uint) {
	t.Helper()

	bookReq := map[string]interface{}{
		"isbn":      GenerateTestISBN(),
		"title":     title,
		"authors":   []string{"测试作者"},
		"publisher": "测试出版社",
	}
	bookResp := PostJSON(t, BaseURL+"/books", bookReq, librarianToken)
	require.Equal(t, 0, bookResp.Code, "书目建档失败: %s", bookResp.Message)

	var bookData BookData
	err := json.Unmarshal(bookResp.Data, &bookData)
	require.NoError(t, err, "解析书目响应失败")

	itemIDs := make([]uint, 0, copies)
	for i := 0; i < copies; i++ {
		itemReq := map[string]interface{}{
			"barcode":   GenerateTestBarcode(),
			"location":  "3F-A12",
			"condition": "good",
		}
		itemResp := PostJSON(t, fmt.Sprintf("%s/books/%d/items", BaseURL, bookData.ID), itemReq, librarianToken)
		require.Equal(t, 0, itemResp.Code, "副本登记失败: %s", itemResp.Message)

		var itemData ItemData
		err := json.Unmarshal(itemResp.Data, &itemData)
		require.NoError(t, err, "解析副本响应失败")
		itemIDs = append(itemIDs, itemData.ID)
	}

	return bookData.ID, itemIDs
}

// CheckoutTestLoan 借出指定副本并返回借阅记录
func CheckoutTestLoan(t *testing.T, token string, bookID, itemID uint) LoanData {
	t.Helper()

	resp := PostJSON(t, BaseURL+"/loans", map[string]interface{}{
		"book_id": bookID,
		"item_id": itemID,
	}, token)
	require.Equal(t, 0, resp.Code, "借出失败: %s", resp.Message)

	var loanData LoanData
	err := json.Unmarshal(resp.Data, &loanData)
	require.NoError(t, err, "解析借阅响应失败")
	return loanData
}
