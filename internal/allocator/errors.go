package allocator

import "errors"

var (
	ErrNoPatients           = errors.New("没有需要分配的患者")
	ErrInvalidParameters    = errors.New("遗传算法参数非法")
	ErrNoCompatibleFacility = errors.New("没有提供该专科的机构")
	ErrUnresolvedFacility   = errors.New("无法在机构列表中找到算法选出的机构")
)
