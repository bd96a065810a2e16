package integration

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 流通引擎集成测试
//
// 验证系统的事务核心:
// 1. 借出/归还/续借的原子性(账本、副本状态、派生计数同步变化)
// 2. 悲观锁防超借(同一副本并发借出只成功一次)
// 3. 借阅上限、续借上限等策略拦截

// TestCheckoutAndReturn 测试借出与归还的完整闭环
func TestCheckoutAndReturn(t *testing.T) {
	librarianToken := LoginLibrarian(t)
	_, memberToken := RegisterTestMember(t, "checkout_member")

	t.Run("正常借出归还", func(t *testing.T) {
		bookID, itemIDs := PublishTestBook(t, librarianToken, "《流通测试·借还》", 1)

		loanData := CheckoutTestLoan(t, memberToken, bookID, itemIDs[0])
		assert.NotZero(t, loanData.ID)
		assert.Equal(t, "在借", loanData.Status)
		assert.NotEmpty(t, loanData.DueDate)

		// 借出后可借册数归零
		bookResp := GetJSON(t, fmt.Sprintf("%s/books/%d", BaseURL, bookID), "")
		require.Equal(t, 0, bookResp.Code)
		var bookData BookData
		require.NoError(t, json.Unmarshal(bookResp.Data, &bookData))
		assert.Equal(t, 0, bookData.AvailableCopies)

		// 归还
		returnResp := PostJSON(t, fmt.Sprintf("%s/loans/%d/return", BaseURL, loanData.ID), nil, memberToken)
		require.Equal(t, 0, returnResp.Code, "归还失败: %s", returnResp.Message)

		var returnData ReturnData
		require.NoError(t, json.Unmarshal(returnResp.Data, &returnData))
		assert.Equal(t, "已归还", returnData.Loan.Status)
		assert.Equal(t, int64(0), returnData.Loan.Fine, "按期归还不应产生罚金")

		// 可借册数恢复
		bookResp = GetJSON(t, fmt.Sprintf("%s/books/%d", BaseURL, bookID), "")
		require.Equal(t, 0, bookResp.Code)
		require.NoError(t, json.Unmarshal(bookResp.Data, &bookData))
		assert.Equal(t, 1, bookData.AvailableCopies)

		t.Logf("✓ 借还闭环: loan=%d due=%s", loanData.ID, loanData.DueDate)
	})

	t.Run("重复归还被拒", func(t *testing.T) {
		bookID, itemIDs := PublishTestBook(t, librarianToken, "《流通测试·重复归还》", 1)
		loanData := CheckoutTestLoan(t, memberToken, bookID, itemIDs[0])

		resp := PostJSON(t, fmt.Sprintf("%s/loans/%d/return", BaseURL, loanData.ID), nil, memberToken)
		require.Equal(t, 0, resp.Code)

		resp = PostJSON(t, fmt.Sprintf("%s/loans/%d/return", BaseURL, loanData.ID), nil, memberToken)
		assert.Equal(t, 40010, resp.Code, "重复归还应返回InvalidState")

		t.Logf("✓ 状态机拦截: %s", resp.Message)
	})

	t.Run("未登录不能借出", func(t *testing.T) {
		bookID, itemIDs := PublishTestBook(t, librarianToken, "《流通测试·未登录》", 1)

		resp := PostJSON(t, BaseURL+"/loans", map[string]interface{}{
			"book_id": bookID,
			"item_id": itemIDs[0],
		}, "")
		assert.Equal(t, 40100, resp.Code)
	})
}

// TestConcurrentCheckout 测试同一副本的并发借出
// 悲观锁+守卫计数下,10个并发请求只允许一人借到
func TestConcurrentCheckout(t *testing.T) {
	librarianToken := LoginLibrarian(t)
	bookID, itemIDs := PublishTestBook(t, librarianToken, "《流通测试·并发防超借》", 1)

	const concurrency = 10
	tokens := make([]string, concurrency)
	for i := 0; i < concurrency; i++ {
		_, tokens[i] = RegisterTestMember(t, fmt.Sprintf("racer_%d", i))
	}

	var wg sync.WaitGroup
	results := make([]int, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp := PostJSON(t, BaseURL+"/loans", map[string]interface{}{
				"book_id": bookID,
				"item_id": itemIDs[0],
			}, tokens[idx])
			results[idx] = resp.Code
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, code := range results {
		if code == 0 {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "同一副本只能被一人借走")

	// 账本核对:可借册数恰好归零,不为负
	bookResp := GetJSON(t, fmt.Sprintf("%s/books/%d", BaseURL, bookID), "")
	require.Equal(t, 0, bookResp.Code)
	var bookData BookData
	require.NoError(t, json.Unmarshal(bookResp.Data, &bookData))
	assert.Equal(t, 0, bookData.AvailableCopies)

	t.Logf("✓ 并发防超借: %d个请求成功%d次", concurrency, succeeded)
}

// TestBorrowLimit 测试会员借阅上限
func TestBorrowLimit(t *testing.T) {
	librarianToken := LoginLibrarian(t)
	_, memberToken := RegisterTestMember(t, "limit_member")

	// 会员上限3本:前3本成功,第4本被拦截
	var loanIDs []uint
	for i := 0; i < 3; i++ {
		bookID, itemIDs := PublishTestBook(t, librarianToken, fmt.Sprintf("《流通测试·上限%d》", i+1), 1)
		loanData := CheckoutTestLoan(t, memberToken, bookID, itemIDs[0])
		loanIDs = append(loanIDs, loanData.ID)
	}

	bookID, itemIDs := PublishTestBook(t, librarianToken, "《流通测试·上限4》", 1)
	resp := PostJSON(t, BaseURL+"/loans", map[string]interface{}{
		"book_id": bookID,
		"item_id": itemIDs[0],
	}, memberToken)
	assert.Equal(t, 40011, resp.Code, "超出上限应返回LimitExceeded")
	assert.Contains(t, resp.Message, "3", "提示语应携带上限值")

	// 归还一本后额度释放
	returnResp := PostJSON(t, fmt.Sprintf("%s/loans/%d/return", BaseURL, loanIDs[0]), nil, memberToken)
	require.Equal(t, 0, returnResp.Code)

	resp = PostJSON(t, BaseURL+"/loans", map[string]interface{}{
		"book_id": bookID,
		"item_id": itemIDs[0],
	}, memberToken)
	assert.Equal(t, 0, resp.Code, "归还后应可继续借出: %s", resp.Message)

	t.Logf("✓ 借阅上限: 第4本拦截,归还后放行")
}

// TestRenew 测试续借
func TestRenew(t *testing.T) {
	librarianToken := LoginLibrarian(t)
	_, memberToken := RegisterTestMember(t, "renew_member")
	bookID, itemIDs := PublishTestBook(t, librarianToken, "《流通测试·续借》", 1)
	loanData := CheckoutTestLoan(t, memberToken, bookID, itemIDs[0])

	// 最多续借2次,第3次被拦截
	for i := 1; i <= 2; i++ {
		resp := PostJSON(t, fmt.Sprintf("%s/loans/%d/renew", BaseURL, loanData.ID), nil, memberToken)
		require.Equal(t, 0, resp.Code, "第%d次续借失败: %s", i, resp.Message)

		var renewed LoanData
		require.NoError(t, json.Unmarshal(resp.Data, &renewed))
		assert.Equal(t, i, renewed.RenewCount)
	}

	resp := PostJSON(t, fmt.Sprintf("%s/loans/%d/renew", BaseURL, loanData.ID), nil, memberToken)
	assert.Equal(t, 40011, resp.Code, "续借次数达上限应返回LimitExceeded")

	t.Logf("✓ 续借上限: 2次放行,第3次拦截")
}

// TestLibrarianGate 测试馆员接口的权限拦截
func TestLibrarianGate(t *testing.T) {
	_, memberToken := RegisterTestMember(t, "gate_member")

	resp := PostJSON(t, BaseURL+"/books", map[string]interface{}{
		"isbn":      GenerateTestISBN(),
		"title":     "《会员不可建档》",
		"authors":   []string{"测试作者"},
		"publisher": "测试出版社",
	}, memberToken)
	assert.Equal(t, 40104, resp.Code, "会员调用馆员接口应返回Forbidden")
}
